package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// chunkQueueSize is how far the collector may fall behind the device
// callback (64 chunks is about 16 s of audio) before the callback waits.
const chunkQueueSize = 64

// LevelFunc receives the RMS of every delivered callback buffer together
// with the raw samples, for meters and voice detection.
type LevelFunc func(rms float64, samples []float32)

// Engine owns one microphone session at a time. Device callbacks are cut into
// ChunkFrames-sized chunks and handed to a collector goroutine over a bounded
// channel. No chunk is ever discarded: when the channel is full the callback
// blocks until the collector catches up. Stop concatenates every chunk in
// delivery order.
type Engine struct {
	ctx    Context
	device *DeviceInfo

	level  atomic.Pointer[LevelFunc]
	stalls atomic.Int64

	mu      sync.Mutex
	capture CaptureDevice
	chunker *chunker
	chunks  chan []float32
	result  chan [][]float32
}

func NewEngine(ctx Context, device *DeviceInfo) *Engine {
	return &Engine{ctx: ctx, device: device}
}

func (e *Engine) SetLevelFunc(fn LevelFunc) {
	if fn == nil {
		e.level.Store(nil)
		return
	}
	e.level.Store(&fn)
}

// Stalls reports how many chunk hand-offs had to wait for the collector.
func (e *Engine) Stalls() int64 { return e.stalls.Load() }

// Active reports whether a device handle is currently held.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture != nil
}

func (e *Engine) DeviceName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		return e.capture.DeviceName()
	}
	if e.device != nil {
		return e.device.Name
	}
	return "system default"
}

// Start acquires the microphone and begins accumulating chunks.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capture != nil {
		return fmt.Errorf("%w: capture already running", ErrDeviceUnavailable)
	}

	capture, err := e.ctx.NewCapture(e.device, CaptureConfig{SampleRate: SampleRate, Channels: 1})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	chunks := make(chan []float32, chunkQueueSize)
	result := make(chan [][]float32, 1)
	go collect(chunks, result)

	ch := &chunker{}
	capture.SetCallback(func(samples []float32) {
		for _, chunk := range ch.add(samples) {
			select {
			case chunks <- chunk:
			default:
				e.stalls.Add(1)
				chunks <- chunk
			}
		}
		if fn := e.level.Load(); fn != nil {
			(*fn)(RMS(samples), samples)
		}
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		close(chunks)
		<-result
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	e.capture = capture
	e.chunker = ch
	e.chunks = chunks
	e.result = result
	return nil
}

// Stop halts capture, releases the device and returns every captured sample.
func (e *Engine) Stop() ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capture == nil {
		return nil, ErrNoAudioCaptured
	}
	chunks := e.teardown()
	if len(chunks) == 0 {
		return nil, ErrNoAudioCaptured
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	samples := make([]float32, 0, total)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	return samples, nil
}

// Release drops any live device handle and discards its samples. Safe to
// call when nothing is held.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		e.teardown()
	}
}

// teardown must be called with e.mu held and e.capture non-nil.
func (e *Engine) teardown() [][]float32 {
	e.capture.Stop()
	e.capture.ClearCallback()
	e.capture.Close()

	if tail := e.chunker.flush(); len(tail) > 0 {
		e.chunks <- tail
	}
	close(e.chunks)
	chunks := <-e.result

	e.capture = nil
	e.chunker = nil
	e.chunks = nil
	e.result = nil
	return chunks
}

func collect(in <-chan []float32, out chan<- [][]float32) {
	var chunks [][]float32
	for c := range in {
		chunks = append(chunks, c)
	}
	out <- chunks
}

type chunker struct {
	mu      sync.Mutex
	pending []float32
}

func (c *chunker) add(samples []float32) [][]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, samples...)
	var full [][]float32
	for len(c.pending) >= ChunkFrames {
		chunk := make([]float32, ChunkFrames)
		copy(chunk, c.pending)
		full = append(full, chunk)
		c.pending = append(c.pending[:0], c.pending[ChunkFrames:]...)
	}
	return full
}

func (c *chunker) flush() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	tail := make([]float32, len(c.pending))
	copy(tail, c.pending)
	c.pending = c.pending[:0]
	return tail
}
