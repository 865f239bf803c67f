// Package persist replicates committed records to their stores: the local
// database, the optional cloud database and the optional webhook.
//
// Callers update in-memory state first and then hand the record to a
// Replicator. Each sink runs independently; a failure in one never affects
// the others or the in-memory state, and is reported as an Outcome.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/metrics"
	"github.com/butancak6/constructionos/records"
)

var ErrPersistenceFailed = errors.New("persistence failed")

// Sink stores records somewhere.
type Sink interface {
	Name() string
	Persist(ctx context.Context, rec records.Record) error
}

// Pinger is implemented by sinks that can run a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Outcome is the result of one side effect.
type Outcome struct {
	Sink     string
	RecordID string
	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

type Replicator struct {
	timeout   time.Duration
	metrics   *metrics.Metrics
	onOutcome func(Outcome)
	wg        sync.WaitGroup
	failures  atomic.Int64
}

type ReplicatorOption func(*Replicator)

// WithTimeout bounds each side effect. Default 15s.
func WithTimeout(d time.Duration) ReplicatorOption {
	return func(r *Replicator) { r.timeout = d }
}

func WithMetrics(m *metrics.Metrics) ReplicatorOption {
	return func(r *Replicator) { r.metrics = m }
}

// WithOutcomeFunc registers a hook called for every outcome, from the
// side effect's goroutine.
func WithOutcomeFunc(fn func(Outcome)) ReplicatorOption {
	return func(r *Replicator) { r.onOutcome = fn }
}

func NewReplicator(opts ...ReplicatorOption) *Replicator {
	r := &Replicator{timeout: 15 * time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Replicate starts one side effect per sink and returns immediately. The
// returned channel receives exactly len(sinks) outcomes and is then closed;
// it is buffered, so callers may ignore it.
//
// Side effects are detached from ctx cancellation so that a finished UI
// action does not abort its writes; ctx values are kept.
func (r *Replicator) Replicate(ctx context.Context, rec records.Record, sinks ...Sink) <-chan Outcome {
	out := make(chan Outcome, len(sinks))
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, s := range sinks {
		if s == nil {
			continue
		}
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(base, r.timeout)
			defer cancel()

			start := time.Now()
			err := s.Persist(sctx, rec)
			if err != nil && !errors.Is(err, ErrPersistenceFailed) {
				err = fmt.Errorf("%w: %s: %w", ErrPersistenceFailed, s.Name(), err)
			}
			o := Outcome{Sink: s.Name(), RecordID: rec.RecordID(), Err: err, Duration: time.Since(start)}

			log.SideEffect(o.Sink, o.RecordID, o.Err)
			r.metrics.RecordSideEffect(o.Sink, o.Duration, o.Err)
			if r.onOutcome != nil {
				r.onOutcome(o)
			}
			out <- o
			return o.Err
		})
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := g.Wait(); err != nil {
			r.failures.Add(1)
			log.Warnf("%s %s not stored everywhere: %v", rec.RecordKind(), rec.RecordID(), err)
		}
		close(out)
	}()
	return out
}

// Incomplete counts records that at least one sink failed to store. The
// errgroup is not context-bound, so one failure never cancels the other sinks.
func (r *Replicator) Incomplete() int64 { return r.failures.Load() }

// Wait blocks until every side effect started so far has finished.
func (r *Replicator) Wait() {
	r.wg.Wait()
}

// Collect drains an outcome channel. A nil channel yields nothing.
func Collect(ch <-chan Outcome) []Outcome {
	var all []Outcome
	if ch == nil {
		return nil
	}
	for o := range ch {
		all = append(all, o)
	}
	return all
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	var bad []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			bad = append(bad, o)
		}
	}
	return bad
}
