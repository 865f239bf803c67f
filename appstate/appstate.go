// Package appstate holds everything the UI renders: the client registry, the
// visible record lists, the invoice draft under review and the debug log.
// A State is created once by main and handed to every component that needs
// it.
package appstate

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/butancak6/constructionos/records"
)

const DebugCapacity = 20

type DebugEntry struct {
	Time    time.Time
	Message string
}

func (e DebugEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Snapshot is a point-in-time copy of the lists, newest first.
type Snapshot struct {
	Clients  []records.Client
	Tasks    []records.Task
	Events   []records.CalendarEvent
	Invoices []records.Invoice
}

type Option func(*State)

// WithClock replaces time.Now for debug timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithChangeFunc registers a listener called, outside the lock, after any
// mutation.
func WithChangeFunc(fn func()) Option {
	return func(s *State) { s.onChange = fn }
}

type State struct {
	now      func() time.Time
	onChange func()

	mu       sync.RWMutex
	clients  []records.Client
	tasks    []records.Task
	events   []records.CalendarEvent
	invoices []records.Invoice
	draft    *records.Invoice
	debug    []DebugEntry // newest first, at most DebugCapacity
}

func New(opts ...Option) *State {
	s := &State{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *State) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Hydrate replaces every list with previously persisted data.
func (s *State) Hydrate(snap Snapshot) {
	s.mu.Lock()
	s.clients = slices.Clone(snap.Clients)
	s.tasks = slices.Clone(snap.Tasks)
	s.events = slices.Clone(snap.Events)
	s.invoices = slices.Clone(snap.Invoices)
	s.mu.Unlock()
	s.changed()
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Clients:  slices.Clone(s.clients),
		Tasks:    slices.Clone(s.tasks),
		Events:   slices.Clone(s.events),
		Invoices: slices.Clone(s.invoices),
	}
}

// Clients returns the registry, most recent first.
func (s *State) Clients() []records.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.clients)
}

func (s *State) AddClient(c records.Client) {
	s.mu.Lock()
	s.clients = slices.Insert(s.clients, 0, c)
	s.mu.Unlock()
	s.changed()
}

func (s *State) AddTask(t records.Task) {
	s.mu.Lock()
	s.tasks = slices.Insert(s.tasks, 0, t)
	s.mu.Unlock()
	s.changed()
}

func (s *State) AddEvent(e records.CalendarEvent) {
	s.mu.Lock()
	s.events = slices.Insert(s.events, 0, e)
	s.mu.Unlock()
	s.changed()
}

func (s *State) AddInvoice(inv records.Invoice) {
	s.mu.Lock()
	s.invoices = slices.Insert(s.invoices, 0, inv)
	s.mu.Unlock()
	s.changed()
}

// Invoice looks up a visible (confirmed) invoice by id.
func (s *State) Invoice(id string) (records.Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.ID == id {
			return inv, true
		}
	}
	return records.Invoice{}, false
}

func (s *State) SetDraft(inv records.Invoice) {
	s.mu.Lock()
	s.draft = &inv
	s.mu.Unlock()
	s.changed()
}

func (s *State) Draft() (records.Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draft == nil {
		return records.Invoice{}, false
	}
	d := *s.draft
	d.Items = slices.Clone(d.Items)
	return d, true
}

// UpdateDraft applies fn to the current draft. It reports false when there
// is no draft.
func (s *State) UpdateDraft(fn func(*records.Invoice)) bool {
	s.mu.Lock()
	if s.draft == nil {
		s.mu.Unlock()
		return false
	}
	fn(s.draft)
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *State) ClearDraft() {
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
	s.changed()
}

// Debug appends a timestamped line to the user-visible debug log, evicting
// the oldest entry beyond DebugCapacity.
func (s *State) Debug(msg string) {
	s.mu.Lock()
	s.debug = slices.Insert(s.debug, 0, DebugEntry{Time: s.now(), Message: msg})
	if len(s.debug) > DebugCapacity {
		s.debug = s.debug[:DebugCapacity]
	}
	s.mu.Unlock()
	s.changed()
}

func (s *State) Debugf(format string, args ...any) {
	s.Debug(fmt.Sprintf(format, args...))
}

// DebugLog returns the retained entries, newest first.
func (s *State) DebugLog() []DebugEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.debug)
}
