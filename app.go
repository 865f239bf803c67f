package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/classifier"
	"github.com/butancak6/constructionos/config"
	"github.com/butancak6/constructionos/dispatch"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/metrics"
	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/queue"
	"github.com/butancak6/constructionos/session"
	"github.com/butancak6/constructionos/transcriber"
)

// app holds everything a command needs after configuration is loaded.
type app struct {
	cfg      *config.Config
	state    *appstate.State
	local    *persist.Local
	remote   *persist.Remote
	webhook  *persist.Webhook
	repl     *persist.Replicator
	engine   *dispatch.Engine
	queue    *queue.Queue
	metrics  *metrics.Metrics
	notifier *notify.Notifier

	transcriber transcriber.Transcriber
	classifier  classifier.Classifier
}

type appOptions struct {
	// needModels fails construction when no API key is configured.
	needModels bool
	notify     []notify.Option
	onChange   func()
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if opts.needModels {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		metrics:  metrics.New(),
		notifier: notify.New(opts.notify...),
	}
	stateOpts := []appstate.Option{}
	if opts.onChange != nil {
		stateOpts = append(stateOpts, appstate.WithChangeFunc(opts.onChange))
	}
	a.state = appstate.New(stateOpts...)

	local, err := persist.OpenLocal(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	a.local = local

	if cfg.Remote.URL != "" {
		a.remote = persist.NewRemote(cfg.Remote.URL, cfg.Remote.APIKey)
	}
	if cfg.WebhookURL != "" {
		a.webhook = persist.NewWebhook(cfg.WebhookURL)
	}

	a.queue, err = queue.Open(cfg.QueueDir)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	if n, err := a.queue.Len(ctx); err == nil {
		a.metrics.SetQueueSize(n)
	}

	a.repl = persist.NewReplicator(
		persist.WithMetrics(a.metrics),
		persist.WithOutcomeFunc(func(o persist.Outcome) {
			if !o.OK() {
				a.state.Debugf("%s sync failed for %s", o.Sink, o.RecordID)
			}
		}),
	)
	a.engine = dispatch.New(a.state, a.repl, a.sinks(), dispatch.WithMetrics(a.metrics))

	snap, err := local.Load(ctx)
	if err != nil {
		log.Warnf("hydrate from local database: %v", err)
	} else {
		a.state.Hydrate(snap)
		a.engine.Hydrate(snap)
	}

	if cfg.GroqAPIKey != "" {
		a.transcriber, err = transcriber.New(transcriber.Config{
			Provider: "groq",
			APIKey:   cfg.GroqAPIKey,
			Model:    cfg.TranscribeModel,
			Language: cfg.Language,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.classifier = classifier.NewGroq(classifier.Config{
			APIKey: cfg.GroqAPIKey,
			Model:  cfg.ClassifyModel,
		})
	}
	return a, nil
}

// sinks avoids storing typed nil pointers in the interface fields.
func (a *app) sinks() dispatch.Sinks {
	s := dispatch.Sinks{Local: a.local}
	if a.remote != nil {
		s.Remote = a.remote
	}
	if a.webhook != nil {
		s.Webhook = a.webhook
	}
	return s
}

func (a *app) pipeline(stopper pipeline.Stopper) *pipeline.Pipeline {
	return pipeline.New(stopper, a.transcriber, a.classifier, a.engine, a.state, pipeline.Config{
		MinChars:          a.cfg.MinTranscriptLen,
		TranscribeTimeout: a.cfg.TranscribeTimeout,
		ClassifyTimeout:   a.cfg.ClassifyTimeout,
	}, pipeline.WithQueue(a.queue), pipeline.WithMetrics(a.metrics))
}

// newRecorder wires a capture context to a session controller and pipeline.
func (a *app) newRecorder(actx audio.Context, device *audio.DeviceInfo, events EventSink) *recorder {
	eng := audio.NewEngine(actx, device)
	r := &recorder{
		engine:     eng,
		state:      a.state,
		events:     events,
		notifier:   a.notifier,
		metrics:    a.metrics,
		silence:    defaultSilence,
		maxReached: make(chan struct{}, 1),
	}
	opts := []session.Option{session.WithStateFunc(events.SessionState)}
	if a.cfg.MaxRecording > 0 {
		opts = append(opts, session.WithMaxDuration(a.cfg.MaxRecording, func() { signalOnce(r.maxReached) }))
	}
	r.sess = session.New(eng, opts...)
	r.pipe = a.pipeline(r.sess)
	a.notifier.Subscribe(events.Toast)
	return r
}

// approve confirms the current draft and toasts the result. The caller
// owns res.Outcomes.
func (a *app) approve(ctx context.Context) (dispatch.Result, error) {
	res, err := a.engine.Approve(ctx)
	if err != nil {
		a.notifier.Error(pipeline.UserMessage(err))
		return res, err
	}
	a.notifier.Success(res.Message)
	return res, nil
}

// Close waits for in-flight side effects before closing the stores.
func (a *app) Close() error {
	a.repl.Wait()
	if n := a.repl.Incomplete(); n > 0 {
		log.Warnf("%d records were not stored in every configured store", n)
	}
	return errors.Join(a.queue.Close(), a.local.Close())
}
