package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/hotkey"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/metrics"
	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/session"
)

// recorder drives one microphone through the session controller and hands
// each finished recording to the pipeline.
type recorder struct {
	sess     *session.Controller
	engine   *audio.Engine
	pipe     *pipeline.Pipeline
	state    *appstate.State
	events   EventSink
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	silence  silenceConfig

	// maxReached fires when the session's maximum duration elapses.
	maxReached chan struct{}
}

// mergeStop returns a channel that closes when any source fires.
func mergeStop(sources ...<-chan struct{}) chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, s := range sources {
		if s == nil {
			continue
		}
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				once.Do(func() { close(out) })
			case <-out:
			}
		}(s)
	}
	return out
}

func signalOnce(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// record starts capture, watches for silence until stop fires and then runs
// the pipeline. isToggle reports whether the recording was started with a tap.
func (r *recorder) record(ctx context.Context, stop <-chan struct{}, isToggle func() bool) (pipeline.Result, error) {
	vp, err := newVADProcessor()
	if err != nil {
		log.Warnf("VAD init: %v", err)
	}
	r.engine.SetLevelFunc(func(rms float64, samples []float32) {
		r.events.AudioLevel(rms)
		if vp != nil {
			vp.ProcessSamples(samples)
		}
	})
	defer r.engine.SetLevelFunc(nil)

	// a max-duration signal left over from the previous recording
	drain(r.maxReached)

	stallsBefore := r.engine.Stalls()
	if err := r.sess.Start(); err != nil {
		r.metrics.RecordSessionError(sessionErrorKind(err))
		r.report(pipeline.Result{}, err)
		return pipeline.Result{}, err
	}
	r.metrics.RecordSessionStart()
	log.Info("recording_device: " + r.engine.DeviceName())
	r.notifier.Cue()

	if isToggle == nil {
		isToggle = func() bool { return false }
	}
	mon := newSilenceMonitor(r.silence, isToggle)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			r.sess.Abort()
			return pipeline.Result{}, ctx.Err()
		case <-stop:
			log.Info("recording_stop")
			break loop
		case <-r.maxReached:
			log.Info("max_duration_stop")
			r.state.Debug("Maximum recording length reached")
			break loop
		case <-ticker.C:
			r.events.RecordingTick(r.sess.Elapsed())
			if vp == nil {
				continue
			}
			switch mon.Tick(vp.HasSpeechTick()) {
			case silenceWarn:
				log.Info("no_voice_warning")
				r.state.Debug("No voice detected")
				r.events.NoVoiceWarning(true)
				r.notifier.Cue()
			case silenceWarnClear:
				r.events.NoVoiceWarning(false)
			case silenceRepeat:
				log.Info("silence_during_warning")
				r.notifier.Cue()
			case silenceAutoClose:
				log.Info("silence_auto_close")
				r.state.Debug("Stopped after prolonged silence")
				break loop
			}
		}
	}

	r.events.NoVoiceWarning(false)
	r.notifier.Cue()
	elapsed := r.sess.Elapsed()
	res, err := r.pipe.StopAndProcess(ctx)
	r.metrics.RecordRecording(elapsed.Seconds(), uint64(r.engine.Stalls()-stallsBefore))
	r.report(res, err)
	return res, err
}

// report surfaces a pipeline result as a toast and watches its side effects.
func (r *recorder) report(res pipeline.Result, err error) {
	r.events.Processed(res, err)
	if err != nil {
		log.Errorf("pipeline: %v", err)
		r.notifier.Error(pipeline.ResultMessage(res, err))
		return
	}
	if res.Dispatch.Message != "" {
		r.notifier.Success(res.Dispatch.Message)
	}
	watchOutcomes(res, r.notifier)
}

// watchOutcomes reports failed side effects once they settle. The local
// change stays in place either way.
func watchOutcomes(res pipeline.Result, n *notify.Notifier) {
	ch := res.Dispatch.Outcomes
	if ch == nil {
		return
	}
	go func() {
		for o := range ch {
			if !o.OK() {
				n.Error(fmt.Sprintf("Saved locally, but %s sync failed.", o.Sink))
			}
		}
	}()
}

func sessionErrorKind(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		return "busy"
	case errors.Is(err, session.ErrStartTimeout):
		return "start_timeout"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "device_unavailable"
	}
	return "other"
}

// uiControl lets the TUI start and stop recordings without the hotkey.
type uiControl struct {
	start chan struct{}
	stop  chan struct{}
}

func newUIControl() *uiControl {
	return &uiControl{start: make(chan struct{}, 1), stop: make(chan struct{}, 1)}
}

func (u *uiControl) toggle(recording bool) {
	if recording {
		signalOnce(u.stop)
	} else {
		signalOnce(u.start)
	}
}

// listen runs recordings triggered by the hotkey or the UI until ctx ends
// and returns how many were processed. done, when set, receives a value
// after each recording.
func (r *recorder) listen(ctx context.Context, hy *hotkey.Hybrid, ui *uiControl, done chan<- struct{}) int {
	count := 0
	for {
		var (
			stop     <-chan struct{}
			isToggle func() bool
		)
		select {
		case <-ctx.Done():
			return count
		case <-hy.Start():
			log.Info("hotkey_start")
			drain(ui.stop)
			stop = mergeStop(hy.Stop(), ui.stop)
			isToggle = hy.IsToggle
		case <-ui.start:
			log.Info("ui_record_start")
			drain(ui.stop)
			stop = mergeStop(ui.stop, hy.Stop())
			isToggle = func() bool { return true }
		}

		if _, err := r.record(ctx, stop, isToggle); err == nil {
			count++
		}
		if done != nil {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
