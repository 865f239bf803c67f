package hotkey

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultHoldThreshold separates a tap from a hold.
const DefaultHoldThreshold = 350 * time.Millisecond

// Hybrid turns one key into both push-to-talk and tap-to-toggle: a press
// always starts a recording; if the key is held past the threshold the
// release stops it, otherwise the next full press does.
type Hybrid struct {
	startCh chan struct{}
	stopCh  chan struct{}
	toggle  atomic.Bool
}

// NewHybrid runs until ctx is cancelled.
func NewHybrid(ctx context.Context, hk Hotkey, hold time.Duration) *Hybrid {
	h := &Hybrid{
		startCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
	}
	go h.run(ctx, hk, hold)
	return h
}

// Start fires when a recording should begin.
func (h *Hybrid) Start() <-chan struct{} { return h.startCh }

// Stop fires when the current recording should end, in either mode.
func (h *Hybrid) Stop() <-chan struct{} { return h.stopCh }

// IsToggle reports whether the current recording was started with a tap.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *Hybrid) run(ctx context.Context, hk Hotkey, hold time.Duration) {
	wait := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if !wait(hk.Keydown()) {
			return
		}
		h.toggle.Store(false)
		signal(h.startCh)

		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// held: release stops
			if !wait(hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			h.toggle.Store(true)
			// tapped: the next press-and-release stops
			if !wait(hk.Keydown()) || !wait(hk.Keyup()) {
				return
			}
		}
		signal(h.stopCh)
	}
}
