package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/butancak6/constructionos/intent"
)

// Fake returns canned JSON, parsed through the same path as a live response.
type Fake struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls []string
}

func NewFake(raw string) *Fake {
	return &Fake{raw: raw}
}

// Set replaces the canned response.
func (f *Fake) Set(raw string, err error) {
	f.mu.Lock()
	f.raw, f.err = raw, err
	f.mu.Unlock()
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Classify(ctx context.Context, transcript string, now time.Time) (intent.Intent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transcript)
	raw, err := f.raw, f.err
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

// Calls returns every transcript the fake was asked to classify.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
