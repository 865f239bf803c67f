package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/session"
)

// EventSink abstracts the display layer so the Bubble Tea TUI and the
// line-oriented simulate/text commands receive the same recording events.
type EventSink interface {
	SessionState(s session.State)
	RecordingTick(elapsed time.Duration)
	AudioLevel(level float64)
	NoVoiceWarning(on bool)
	Processed(res pipeline.Result, err error)
	Toast(t notify.Toast)
	StateChanged()
}

// lineSink prints events as plain lines. Level and tick updates are dropped.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineSink(w io.Writer) *lineSink { return &lineSink{w: w} }

func (s *lineSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *lineSink) SessionState(st session.State) { s.printf("state: %s", st) }
func (s *lineSink) RecordingTick(time.Duration)   {}
func (s *lineSink) AudioLevel(float64)            {}
func (s *lineSink) StateChanged()                 {}
func (s *lineSink) Toast(t notify.Toast)          { s.printf("[%s] %s", t.Level, t.Message) }

func (s *lineSink) NoVoiceWarning(on bool) {
	if on {
		s.printf("warning: no voice detected")
	}
}

func (s *lineSink) Processed(res pipeline.Result, err error) {
	if res.Transcript != "" {
		s.printf("transcript: %s", res.Transcript)
	}
	if res.Queued != nil {
		s.printf("queued: %s", res.Queued.ID)
	}
	if err != nil {
		return
	}
	if r := res.Dispatch.Record; r != nil {
		s.printf("created %s %s (%s)", r.RecordKind(), r.RecordID(), res.Dispatch.Route)
	}
}
