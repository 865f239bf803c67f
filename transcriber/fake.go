package transcriber

import (
	"context"
	"fmt"
	"sync"
)

type FakeTranscriber struct {
	text string
	err  error
	lang string

	mu    sync.Mutex
	calls int
	last  []byte
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

// Set replaces the canned response.
func (f *FakeTranscriber) Set(text string, err error) {
	f.mu.Lock()
	f.text, f.err = text, err
	f.mu.Unlock()
}

func (f *FakeTranscriber) Name() string           { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.last = wav
	text, ferr := f.text, f.err
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if ferr != nil {
		return nil, fmt.Errorf("%w: fake transcriber error: %w", ErrTranscriptionFailed, ferr)
	}
	return &Result{Text: text, Metrics: &NetworkMetrics{}}, nil
}

// Calls reports how many times Transcribe ran.
func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Last returns the most recent audio passed to Transcribe.
func (f *FakeTranscriber) Last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
