// Package notify shows desktop toasts and plays short audible cues.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/butancak6/constructionos/log"
)

const appName = "ConstructionOS"

type Level int

const (
	Success Level = iota
	Error
)

func (l Level) String() string {
	if l == Error {
		return "error"
	}
	return "success"
}

// Toast is one user-visible message.
type Toast struct {
	Level   Level
	Message string
}

type Notifier struct {
	desktop bool
	sound   bool
	send    func(title, msg string) error
	beep    func() error

	mu   sync.Mutex
	last *Toast
	subs []func(Toast)
}

type Option func(*Notifier)

// WithDesktop enables OS notifications.
func WithDesktop(on bool) Option {
	return func(n *Notifier) { n.desktop = on }
}

// WithSound enables the start/stop cues.
func WithSound(on bool) Option {
	return func(n *Notifier) { n.sound = on }
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		send: func(title, msg string) error { return beeep.Notify(title, msg, "") },
		beep: func() error { return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration) },
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Subscribe registers fn for every toast, e.g. the TUI status line.
func (n *Notifier) Subscribe(fn func(Toast)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

func (n *Notifier) Notify(level Level, msg string) {
	t := Toast{Level: level, Message: msg}
	n.mu.Lock()
	n.last = &t
	subs := append([]func(Toast){}, n.subs...)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
	if n.desktop {
		if err := n.send(appName, msg); err != nil {
			log.Warnf("desktop notification failed: %v", err)
		}
	}
}

func (n *Notifier) Success(msg string) { n.Notify(Success, msg) }
func (n *Notifier) Error(msg string)   { n.Notify(Error, msg) }

// Last returns the most recent toast.
func (n *Notifier) Last() (Toast, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return Toast{}, false
	}
	return *n.last, true
}

// Cue plays a short beep when sound is enabled.
func (n *Notifier) Cue() {
	if !n.sound {
		return
	}
	go func() {
		if err := n.beep(); err != nil {
			log.Warnf("beep failed: %v", err)
		}
	}()
}
