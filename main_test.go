package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/classifier"
	"github.com/butancak6/constructionos/config"
	"github.com/butancak6/constructionos/hotkey"
	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/records"
	"github.com/butancak6/constructionos/session"
	"github.com/butancak6/constructionos/transcriber"
)

func testApp(t *testing.T, transcript, raw string) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DBPath:            filepath.Join(dir, "construction.db"),
		QueueDir:          filepath.Join(dir, "queue"),
		MinTranscriptLen:  5,
		TranscribeTimeout: 5 * time.Second,
		ClassifyTimeout:   5 * time.Second,
	}
	a, err := newApp(t.Context(), cfg, appOptions{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	a.transcriber = transcriber.NewFake(transcript, nil)
	a.classifier = classifier.NewFake(raw)
	return a
}

func speechLike(seconds float64) []float32 {
	n := int(seconds * audio.SampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/audio.SampleRate))
	}
	return out
}

func TestRecordCreatesTask(t *testing.T) {
	a := testApp(t, "Remind me to call the plumber", `{"intent":"create_task","description":"Call the plumber","priority":"High"}`)
	var out bytes.Buffer
	rec := a.newRecorder(audio.NewFakeContextSamples(speechLike(1), false), nil, newLineSink(&out))

	stop := make(chan struct{})
	close(stop)
	res, err := rec.record(t.Context(), stop, nil)
	if err != nil {
		t.Fatal(err)
	}
	task, ok := res.Dispatch.Record.(records.Task)
	if !ok {
		t.Fatalf("record = %#v", res.Dispatch.Record)
	}
	if task.Description != "Call the plumber" || task.Priority != records.PriorityHigh {
		t.Errorf("task = %+v", task)
	}
	for _, o := range persist.Collect(res.Dispatch.Outcomes) {
		if !o.OK() {
			t.Errorf("side effect %s failed: %v", o.Sink, o.Err)
		}
	}

	s := out.String()
	for _, want := range []string{"state: RECORDING", "state: IDLE", "transcript: Remind me to call the plumber", "created task"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if last, ok := a.notifier.Last(); !ok || last.Level != notify.Success {
		t.Errorf("toast = %+v", last)
	}
	if rec.sess.State() != session.Idle {
		t.Errorf("session left in %s", rec.sess.State())
	}
}

func TestRecordShortTranscript(t *testing.T) {
	a := testApp(t, "uh", `{}`)
	rec := a.newRecorder(audio.NewFakeContextSamples(speechLike(0.5), false), nil, newLineSink(&bytes.Buffer{}))

	stop := make(chan struct{})
	close(stop)
	_, err := rec.record(t.Context(), stop, nil)
	if !errors.Is(err, pipeline.ErrNoSpeech) {
		t.Fatalf("err = %v", err)
	}
	last, _ := a.notifier.Last()
	if last.Level != notify.Error || last.Message != "No voice detected. Please speak closer." {
		t.Errorf("toast = %+v", last)
	}
}

func TestRecordDeviceFailure(t *testing.T) {
	a := testApp(t, "", `{}`)
	fctx := audio.NewFakeContextSamples(nil, false)
	fctx.StartErr = errors.New("permission denied")
	rec := a.newRecorder(fctx, nil, newLineSink(&bytes.Buffer{}))

	_, err := rec.record(t.Context(), make(chan struct{}), nil)
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if rec.engine.Active() {
		t.Error("device still held")
	}
}

func TestRecordCancelAborts(t *testing.T) {
	a := testApp(t, "Remind me to call the plumber", `{}`)
	rec := a.newRecorder(audio.NewFakeContextSamples(speechLike(1), true), nil, newLineSink(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := rec.record(ctx, make(chan struct{}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if rec.sess.State() != session.Idle || rec.engine.Active() {
		t.Error("cancelled recording left the device held")
	}
}

func TestListenWithHotkey(t *testing.T) {
	a := testApp(t, "Add a contact Maria Lopez", `{"intent":"create_client","name":"Maria Lopez"}`)
	rec := a.newRecorder(audio.NewFakeContextSamples(speechLike(0.5), false), nil, newLineSink(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	hk := hotkey.NewFake()
	hy := hotkey.NewHybrid(ctx, hk, 20*time.Millisecond)
	done := make(chan struct{}, 1)
	counted := make(chan int, 1)
	go func() { counted <- rec.listen(ctx, hy, newUIControl(), done) }()

	hk.SimKeydown()
	time.Sleep(60 * time.Millisecond) // held past the threshold
	hk.SimKeyup()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recording never finished")
	}
	cancel()
	if n := <-counted; n != 1 {
		t.Errorf("count = %d", n)
	}
	clients := a.state.Clients()
	if len(clients) == 0 || clients[0].Name != "Maria Lopez" {
		t.Errorf("clients = %+v", clients)
	}
}

func TestMergeStop(t *testing.T) {
	a := make(chan struct{})
	b := make(chan struct{})
	out := mergeStop(a, nil, b)
	close(b)
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("merged channel did not close")
	}
}

func TestUIControlToggle(t *testing.T) {
	u := newUIControl()
	u.toggle(false)
	u.toggle(false) // coalesced
	select {
	case <-u.start:
	default:
		t.Fatal("expected start")
	}
	select {
	case <-u.start:
		t.Fatal("start signals should coalesce")
	default:
	}
	u.toggle(true)
	select {
	case <-u.stop:
	default:
		t.Fatal("expected stop")
	}
}

func TestTUIModelStates(t *testing.T) {
	st := appstate.New()
	var m tea.Model = newTUIModel(st, tuiActions{}, nil, "mic: fake", "[groq | test]")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	if v := m.View(); !strings.Contains(v, "○ IDLE") || !strings.Contains(v, "mic: fake") {
		t.Errorf("idle view:\n%s", v)
	}

	m, _ = m.Update(sessionStateMsg{State: session.Recording})
	m, _ = m.Update(recordingTickMsg{Elapsed: 2500 * time.Millisecond})
	m, _ = m.Update(noVoiceMsg{On: true})
	v := m.View()
	if !strings.Contains(v, "REC 2.5s") || !strings.Contains(v, "no voice detected") {
		t.Errorf("recording view:\n%s", v)
	}

	m, _ = m.Update(sessionStateMsg{State: session.Stopping})
	if v := m.View(); !strings.Contains(v, "PROCESSING") {
		t.Errorf("stopping view:\n%s", v)
	}

	m, _ = m.Update(sessionStateMsg{State: session.Idle})
	m, _ = m.Update(processedMsg{Result: pipeline.Result{Transcript: "Invoice Jason Park"}})
	m, _ = m.Update(toastMsg{Toast: notify.Toast{Level: notify.Success, Message: "Invoice draft ready"}})
	v = m.View()
	for _, want := range []string{"○ IDLE", "Invoice Jason Park", "Invoice draft ready"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestTUIDraftAndKeys(t *testing.T) {
	st := appstate.New()
	st.SetDraft(records.Invoice{ID: "INV-12345", Client: "Jason Park", Amount: 500, Description: "HVAC", Status: records.StatusDraft})
	st.Debug("Invoice draft ready")

	approved := false
	var m tea.Model = newTUIModel(st, tuiActions{Approve: func() { approved = true }}, nil, "", "")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	v := m.View()
	for _, want := range []string{"Invoice INV-12345", "Jason Park", "$500.00", "approve", "Invoice draft ready"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if cmd == nil {
		t.Fatal("approve key returned no command")
	}
	cmd()
	if !approved {
		t.Error("approve action not called")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestWrapAndTruncate(t *testing.T) {
	lines := wrapText("invoice Jason Park for HVAC repair", 12)
	for _, l := range lines {
		if len(l) > 12 {
			t.Errorf("line too long: %q", l)
		}
	}
	if got := strings.Join(lines, " "); got != "invoice Jason Park for HVAC repair" {
		t.Errorf("wrapped text lost words: %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
}

func TestLineSink(t *testing.T) {
	var out bytes.Buffer
	s := newLineSink(&out)
	s.Toast(notify.Toast{Level: notify.Error, Message: "Could not understand command."})
	s.NoVoiceWarning(true)
	s.NoVoiceWarning(false)
	want := "[error] Could not understand command.\nwarning: no voice detected\n"
	if out.String() != want {
		t.Errorf("output = %q", out.String())
	}
}
