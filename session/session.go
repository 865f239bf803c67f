// Package session guards the microphone behind a single-owner state machine.
//
//	IDLE --Start--> STARTING --ok--> RECORDING --Stop--> STOPPING --ok--> IDLE
//
// Any failure returns the controller to IDLE with the device released.
// Overlapping Start/Stop calls are refused with ErrSessionBusy, never queued.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/encoder"
)

const (
	DefaultDrainDelay    = 150 * time.Millisecond
	DefaultLivenessGuard = 5 * time.Second
)

var (
	ErrSessionBusy  = errors.New("recording session busy")
	ErrStartTimeout = errors.New("microphone start timed out")
)

type State int

const (
	Idle State = iota
	Starting
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Recording:
		return "RECORDING"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Recorder is the capture surface the controller drives. *audio.Engine
// satisfies it.
type Recorder interface {
	Start() error
	Stop() ([]float32, error)
	Release()
}

type Option func(*Controller)

func WithDrainDelay(d time.Duration) Option {
	return func(c *Controller) { c.drain = d }
}

func WithLivenessGuard(d time.Duration) Option {
	return func(c *Controller) { c.guard = d }
}

// WithStateFunc registers a listener called after every transition, outside
// the controller lock.
func WithStateFunc(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// WithMaxDuration calls fn once a recording has run for d. The callback is
// expected to call Stop.
func WithMaxDuration(d time.Duration, fn func()) Option {
	return func(c *Controller) {
		c.maxDuration = d
		c.onMaxDuration = fn
	}
}

type Controller struct {
	rec           Recorder
	drain         time.Duration
	guard         time.Duration
	maxDuration   time.Duration
	onMaxDuration func()
	onState       func(State)

	mu        sync.Mutex
	state     State
	busy      bool
	gen       uint64
	startedAt time.Time
	maxTimer  *time.Timer
}

func New(rec Recorder, opts ...Option) *Controller {
	c := &Controller{
		rec:   rec,
		drain: DefaultDrainDelay,
		guard: DefaultLivenessGuard,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Elapsed is the time since the current recording began, 0 when not recording.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return 0
	}
	return time.Since(c.startedAt)
}

func (c *Controller) notify(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

// Start acquires the microphone. Any handle left over from a previous
// session is released first.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.busy || c.state != Idle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.busy = true
	c.gen++
	gen := c.gen
	c.state = Starting
	c.mu.Unlock()
	c.notify(Starting)

	guard := time.AfterFunc(c.guard, func() { c.expire(gen) })

	c.rec.Release()
	err := c.rec.Start()
	guard.Stop()

	c.mu.Lock()
	if c.gen != gen {
		// The liveness guard already gave up on this start.
		if err == nil && !c.busy && c.state == Idle {
			c.rec.Release()
		}
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, ErrStartTimeout)
	}
	c.busy = false
	if err != nil {
		c.state = Idle
		c.mu.Unlock()
		c.rec.Release()
		c.notify(Idle)
		return err
	}
	c.state = Recording
	c.startedAt = time.Now()
	if c.maxDuration > 0 && c.onMaxDuration != nil {
		c.maxTimer = time.AfterFunc(c.maxDuration, c.onMaxDuration)
	}
	c.mu.Unlock()
	c.notify(Recording)
	return nil
}

// expire clears a start that never completed.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != Starting {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.busy = false
	c.state = Idle
	c.mu.Unlock()
	c.notify(Idle)
}

// Stop waits for the drain delay, releases the microphone and returns the
// captured audio as a canonical WAV artifact. Stopping without a successful
// Start yields audio.ErrNoAudioCaptured.
func (c *Controller) Stop() ([]byte, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrSessionBusy
	}
	if c.state != Recording {
		c.mu.Unlock()
		return nil, audio.ErrNoAudioCaptured
	}
	c.busy = true
	c.gen++
	gen := c.gen
	c.state = Stopping
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
	c.mu.Unlock()
	c.notify(Stopping)

	time.Sleep(c.drain)

	c.mu.Lock()
	if c.gen != gen {
		// Aborted while draining; the device may already belong to a new session.
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: recording aborted", audio.ErrNoAudioCaptured)
	}
	samples, err := c.rec.Stop()
	if err != nil {
		c.rec.Release()
	}
	c.busy = false
	c.state = Idle
	c.mu.Unlock()
	c.notify(Idle)

	if err != nil {
		return nil, err
	}
	return encoder.EncodeWAV(samples, audio.SampleRate), nil
}

// Abort releases the microphone without producing an artifact.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.state == Idle && !c.busy {
		c.mu.Unlock()
		c.rec.Release()
		return
	}
	c.gen++
	c.busy = false
	c.state = Idle
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
	c.mu.Unlock()
	c.rec.Release()
	c.notify(Idle)
}
