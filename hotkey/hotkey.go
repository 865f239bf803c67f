// Package hotkey delivers the global record key (Ctrl+Shift+Space) as
// keydown/keyup channels.
package hotkey

import (
	"golang.design/x/hotkey"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

type xHotkey struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	done    chan struct{}
}

func New() Hotkey {
	return &xHotkey{
		hk:      hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	go forward(h.hk.Keydown(), h.keydown, h.done)
	go forward(h.hk.Keyup(), h.keyup, h.done)
	return nil
}

func forward(in <-chan hotkey.Event, out chan<- struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-in:
		}
		select {
		case out <- struct{}{}:
		case <-done:
			return
		}
	}
}

func (h *xHotkey) Unregister() {
	select {
	case <-h.done:
		return
	default:
		close(h.done)
	}
	h.hk.Unregister()
}

func (h *xHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *xHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func Diagnose() (string, error) {
	return "hotkey support available (Ctrl+Shift+Space)", nil
}
