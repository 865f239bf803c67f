// Package pipeline runs one voice command end to end: stop the recording,
// transcribe it, classify the transcript and dispatch the intent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/classifier"
	"github.com/butancak6/constructionos/dispatch"
	"github.com/butancak6/constructionos/encoder"
	"github.com/butancak6/constructionos/intent"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/metrics"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/queue"
	"github.com/butancak6/constructionos/session"
	"github.com/butancak6/constructionos/transcriber"
)

const (
	DefaultMinChars          = 5
	DefaultTranscribeTimeout = 60 * time.Second
	DefaultClassifyTimeout   = 30 * time.Second
)

var ErrNoSpeech = errors.New("no speech detected")

const (
	SourceVoice  = "voice"
	SourceText   = "text"
	SourceReplay = "replay"
)

// Stopper ends a recording and returns the WAV artifact.
type Stopper interface {
	Stop() ([]byte, error)
}

// Queue stores recordings that could not be transcribed.
type Queue interface {
	Add(ctx context.Context, wav []byte) (queue.Item, error)
}

// ReplayQueue is the part of *queue.Queue that Replay drives.
type ReplayQueue interface {
	List(ctx context.Context) ([]queue.Item, error)
	Len(ctx context.Context) (int, error)
	Audio(item queue.Item) ([]byte, error)
	MarkUploading(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Remove(ctx context.Context, id string) error
}

type Config struct {
	MinChars          int
	TranscribeTimeout time.Duration
	ClassifyTimeout   time.Duration
}

type Result struct {
	Transcript string
	Dispatch   dispatch.Result
	// Queued is set when the recording was kept for a later replay.
	Queued *queue.Item
}

type Pipeline struct {
	session    Stopper
	transcribe transcriber.Transcriber
	classify   classifier.Classifier
	engine     *dispatch.Engine
	state      *appstate.State
	queue      Queue
	metrics    *metrics.Metrics
	cfg        Config
	now        func() time.Time

	running atomic.Bool
}

type Option func(*Pipeline)

func WithQueue(q Queue) Option {
	return func(p *Pipeline) { p.queue = q }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(sess Stopper, tr transcriber.Transcriber, cl classifier.Classifier, eng *dispatch.Engine, state *appstate.State, cfg Config, opts ...Option) *Pipeline {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = DefaultTranscribeTimeout
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultClassifyTimeout
	}
	p := &Pipeline{
		session:    sess,
		transcribe: tr,
		classify:   cl,
		engine:     eng,
		state:      state,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool { return p.running.Load() }

func (p *Pipeline) acquire() bool {
	return p.running.CompareAndSwap(false, true)
}

// StopAndProcess stops the active recording and processes it.
func (p *Pipeline) StopAndProcess(ctx context.Context) (Result, error) {
	if !p.acquire() {
		return Result{}, session.ErrSessionBusy
	}
	defer p.running.Store(false)

	p.state.Debug("Stopping recording...")
	wav, err := p.session.Stop()
	if err != nil {
		p.state.Debugf("Capture failed: %v", err)
		p.metrics.RecordPipelineRun(SourceVoice, outcome(err))
		return Result{}, err
	}
	return p.run(ctx, SourceVoice, wav, true)
}

// ProcessAudio runs an existing WAV artifact through the pipeline.
func (p *Pipeline) ProcessAudio(ctx context.Context, wav []byte) (Result, error) {
	if !p.acquire() {
		return Result{}, session.ErrSessionBusy
	}
	defer p.running.Store(false)
	return p.run(ctx, SourceVoice, wav, true)
}

// ProcessText skips capture and transcription.
func (p *Pipeline) ProcessText(ctx context.Context, text string) (Result, error) {
	if !p.acquire() {
		return Result{}, session.ErrSessionBusy
	}
	defer p.running.Store(false)

	start := time.Now()
	run := log.Run{Source: SourceText}
	res, err := p.interpret(ctx, text, &run)
	p.finish(&run, start, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, source string, wav []byte, enqueue bool) (Result, error) {
	start := time.Now()
	run := log.Run{Source: source}
	if info, err := encoder.ParseWAVHeader(wav); err == nil {
		run.AudioS = info.Duration()
	}

	p.state.Debugf("Transcribing %.1fs of audio...", run.AudioS)
	text, err := p.transcribeWAV(ctx, wav, &run)
	if err != nil {
		res := Result{}
		if enqueue && p.queue != nil && errors.Is(err, transcriber.ErrTranscriptionFailed) {
			if item, qerr := p.queue.Add(context.WithoutCancel(ctx), wav); qerr != nil {
				log.Errorf("queue recording: %v", qerr)
			} else {
				res.Queued = &item
				p.state.Debugf("Saved to offline queue: %s", item.ID)
			}
		}
		p.finish(&run, start, err)
		return res, err
	}

	res, err := p.interpret(ctx, text, &run)
	p.finish(&run, start, err)
	return res, err
}

func (p *Pipeline) transcribeWAV(ctx context.Context, wav []byte, run *log.Run) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
	defer cancel()

	t0 := time.Now()
	tr, err := p.transcribe.Transcribe(tctx, wav)
	elapsed := time.Since(t0)
	run.TranscribeMs = float64(elapsed.Milliseconds())
	p.metrics.RecordTranscription(elapsed)
	if err != nil {
		if !errors.Is(err, transcriber.ErrTranscriptionFailed) {
			err = fmt.Errorf("%w: %w", transcriber.ErrTranscriptionFailed, err)
		}
		p.state.Debugf("Transcription failed: %v", err)
		return "", err
	}
	if m := tr.Metrics; m != nil {
		log.TranscriptionNetwork(p.transcribe.Name(),
			float64(m.DNS.Milliseconds()), float64(m.TLS.Milliseconds()),
			float64(m.TTFB.Milliseconds()), float64(m.Total.Milliseconds()),
			m.ConnReused, m.TLSProtocol)
	}
	return tr.Text, nil
}

// interpret applies the minimum-length check, classifies and dispatches.
func (p *Pipeline) interpret(ctx context.Context, text string, run *log.Run) (Result, error) {
	text = strings.TrimSpace(text)
	run.TranscriptChars = len([]rune(text))
	res := Result{Transcript: text}
	if text != "" {
		log.TranscriptionText(text)
	}
	if run.TranscriptChars < p.cfg.MinChars {
		p.state.Debug("No voice detected.")
		return res, ErrNoSpeech
	}
	p.state.Debugf("Heard: %q", text)

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	t0 := time.Now()
	in, err := p.classify.Classify(cctx, text, p.now())
	cancel()
	elapsed := time.Since(t0)
	run.ClassifyMs = float64(elapsed.Milliseconds())
	p.metrics.RecordClassification(elapsed)
	if err != nil {
		if !errors.Is(err, classifier.ErrClassificationFailed) {
			err = fmt.Errorf("%w: %w", classifier.ErrClassificationFailed, err)
		}
		p.state.Debugf("Process Failed: %v", err)
		return res, err
	}
	run.Intent = string(in.Kind())
	p.state.Debugf("Intent: %s", in.Kind())

	d, err := p.engine.Dispatch(ctx, in)
	res.Dispatch = d
	return res, err
}

func (p *Pipeline) finish(run *log.Run, start time.Time, err error) {
	run.TotalMs = float64(time.Since(start).Milliseconds())
	run.Outcome = outcome(err)
	run.Err = err
	log.PipelineRun(*run)
	p.metrics.RecordPipelineRun(run.Source, run.Outcome)
}

// Replay retries every queued recording. Successful items are removed;
// failures stay queued with their retry count bumped. It returns how many
// items were processed successfully.
func (p *Pipeline) Replay(ctx context.Context, q ReplayQueue) (int, error) {
	if !p.acquire() {
		return 0, session.ErrSessionBusy
	}
	defer p.running.Store(false)

	items, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := q.MarkUploading(ctx, item.ID); err != nil {
			return done, err
		}
		wav, err := q.Audio(item)
		if err != nil {
			p.markFailed(ctx, q, item.ID, err)
			continue
		}
		_, runErr := p.run(ctx, SourceReplay, wav, false)
		// Only transcription is worth retrying; a later failure (no speech,
		// unknown command) would repeat.
		if errors.Is(runErr, transcriber.ErrTranscriptionFailed) {
			p.markFailed(ctx, q, item.ID, runErr)
			continue
		}
		if err := q.Remove(ctx, item.ID); err != nil {
			return done, err
		}
		if runErr == nil {
			done++
		}
	}
	if n, err := q.Len(ctx); err == nil {
		p.metrics.SetQueueSize(n)
	}
	return done, nil
}

func (p *Pipeline) markFailed(ctx context.Context, q ReplayQueue, id string, cause error) {
	if err := q.MarkFailed(ctx, id, cause); err != nil {
		log.Errorf("queue: mark %s failed: %v", id, err)
		p.state.Debugf("Could not update queued recording %s", id)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "dispatched"
	case errors.Is(err, ErrNoSpeech):
		return "no_speech"
	case errors.Is(err, audio.ErrDeviceUnavailable), errors.Is(err, audio.ErrNoAudioCaptured):
		return "capture_failed"
	case errors.Is(err, session.ErrSessionBusy):
		return "busy"
	case errors.Is(err, transcriber.ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, intent.ErrUnrecognizedIntent):
		return "unrecognized"
	case errors.Is(err, classifier.ErrClassificationFailed):
		return "classification_failed"
	}
	return "error"
}

// ResultMessage is UserMessage plus a note when the recording went to the
// offline queue.
func ResultMessage(res Result, err error) string {
	msg := UserMessage(err)
	if err != nil && res.Queued != nil {
		msg += " The recording was kept for retry."
	}
	return msg
}

// UserMessage maps any error from this package or its collaborators to the
// line shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSpeech):
		return "No voice detected. Please speak closer."
	case errors.Is(err, session.ErrStartTimeout):
		return "Microphone did not respond. Try again or pick another device."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "Microphone unavailable. Check permissions and that no other app is using it."
	case errors.Is(err, audio.ErrNoAudioCaptured):
		return "No audio captured. Hold the record key while speaking."
	case errors.Is(err, session.ErrSessionBusy):
		return "Still working on the previous command."
	case errors.Is(err, transcriber.ErrTranscriptionFailed):
		if errors.Is(err, context.DeadlineExceeded) {
			return "Transcription timed out."
		}
		return "Transcription failed. Check your connection."
	case errors.Is(err, intent.ErrUnrecognizedIntent):
		return "Could not understand command."
	case errors.Is(err, classifier.ErrClassificationFailed):
		if errors.Is(err, context.DeadlineExceeded) {
			return "AI Error: request timed out."
		}
		return "AI Error: could not interpret the command."
	case errors.Is(err, dispatch.ErrInvalidDraft):
		return "Error: Missing Invoice Data (Amount or Client)"
	case errors.Is(err, dispatch.ErrNoDraft):
		return "No invoice to approve."
	case errors.Is(err, persist.ErrPersistenceFailed):
		return "Saved locally, but sync failed."
	}
	return err.Error()
}
