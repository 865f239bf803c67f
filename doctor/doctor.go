// Package doctor runs the setup diagnostics behind `constructionos doctor`.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/classifier"
	"github.com/butancak6/constructionos/hotkey"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/session"
)

// ErrSkipped marks a check that did not apply, e.g. an unconfigured sink.
var ErrSkipped = errors.New("skipped")

// Check returns a one-line detail on success.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
// Skipped checks do not count as failures.
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "constructionos doctor - system diagnostics")
	fmt.Fprintln(w, "==========================================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(checks), c.Name)
		if ctx.Err() != nil {
			fmt.Fprintln(w, "  FAIL: interrupted")
			allPass = false
			break
		}
		detail, err := c.Run(ctx)
		switch {
		case errors.Is(err, ErrSkipped):
			fmt.Fprintf(w, "  SKIP: %s\n", detail)
		case err != nil:
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			allPass = false
		default:
			fmt.Fprintf(w, "  PASS: %s\n", detail)
		}
	}

	fmt.Fprintln(w)
	if allPass {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintln(w, "Some checks failed. See details above.")
	return 1
}

func APIKey(key string) Check {
	return Check{Name: "Groq API key", Run: func(context.Context) (string, error) {
		if key == "" {
			return "", errors.New("not set. Set CONSTRUCTIONOS_GROQ_API_KEY or add groq_api_key to the config file")
		}
		return "configured", nil
	}}
}

// Microphone records for d and reports the captured level.
func Microphone(rec session.Recorder, name string, d time.Duration) Check {
	return Check{Name: "Microphone (" + name + ")", Run: func(ctx context.Context) (string, error) {
		if err := rec.Start(); err != nil {
			return "", err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			rec.Release()
			return "", ctx.Err()
		}
		samples, err := rec.Stop()
		rec.Release()
		if err != nil {
			return "", err
		}
		if len(samples) == 0 {
			return "", errors.New("no audio captured")
		}
		rms := audio.RMS(samples)
		if rms == 0 {
			return "", fmt.Errorf("captured %d samples of silence; is the input muted?", len(samples))
		}
		return fmt.Sprintf("captured %.1fs, level %.4f", float64(len(samples))/audio.SampleRate, rms), nil
	}}
}

// Sink pings a persistence target. A nil pinger is reported as not configured.
func Sink(name string, p persist.Pinger) Check {
	return Check{Name: name, Run: func(ctx context.Context) (string, error) {
		if p == nil {
			return "not configured", ErrSkipped
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return "", err
		}
		return "reachable", nil
	}}
}

// Classifier sends a fixed sample command through the model.
func Classifier(c classifier.Classifier) Check {
	return Check{Name: "Command classification", Run: func(ctx context.Context) (string, error) {
		if c == nil {
			return "no API key", ErrSkipped
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		in, err := c.Classify(ctx, "Remind me to order more drywall", time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("sample command classified as %s", in.Kind()), nil
	}}
}

// Hotkey waits for the user to press the record key.
func Hotkey(hk hotkey.Hotkey, w io.Writer, timeout time.Duration) Check {
	return Check{Name: "Hotkey detection", Run: func(ctx context.Context) (string, error) {
		fmt.Fprintln(w, "Press Ctrl+Shift+Space...")
		if err := hk.Register(); err != nil {
			return "", fmt.Errorf("could not register hotkey: %w", err)
		}
		defer hk.Unregister()

		select {
		case <-hk.Keydown():
			select {
			case <-hk.Keyup():
			case <-time.After(5 * time.Second):
			}
			// the hotkey grab may leave the terminal in raw mode
			resetTerminal()
			return "hotkey detected", nil
		case <-time.After(timeout):
			return "", errors.New("timeout waiting for hotkey")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
}
