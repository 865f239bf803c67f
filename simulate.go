package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/hotkey"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/shutdown"
)

func newSimulateCmd(f *rootFlags) *cobra.Command {
	var realtime, script, approve bool
	cmd := &cobra.Command{
		Use:   "simulate <file.wav>",
		Short: "Run the full voice pipeline with a WAV file as the microphone",
		Long: `Replays a 16 kHz mono WAV file through capture, transcription, classification and dispatch.

With --script, stdin drives the run one command per line:
  KEYDOWN / KEYUP      press or release the record key
  WAIT                 wait until the current recording is processed
  WAIT_AUDIO_DONE      wait until the whole file has been captured
  SLEEP <ms>           pause
  APPROVE / DISCARD    act on the invoice draft
  QUIT                 exit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer log.Close()
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			fctx, err := audio.NewFakeContext(args[0], realtime || script)
			if err != nil {
				return fmt.Errorf("loading WAV: %w", err)
			}

			a, err := newApp(ctx, cfg, appOptions{needModels: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := newLineSink(cmd.OutOrStdout())
			rec := a.newRecorder(fctx, nil, out)
			log.SessionStart(a.transcriber.Name(), "simulate:"+args[0])

			if script {
				n := runScript(ctx, cmd.InOrStdin(), a, rec, fctx)
				log.SessionEnd(n)
				return nil
			}

			// Capture ends on its own once the file has been delivered.
			stopRec := make(chan struct{})
			go func() {
				if realtime {
					time.Sleep(fctx.Duration() + 200*time.Millisecond)
				}
				close(stopRec)
			}()
			res, err := rec.record(ctx, stopRec, nil)
			if err != nil {
				return err
			}
			log.SessionEnd(1)
			printOutcomes(cmd, res.Dispatch.Outcomes)
			if approve {
				if _, ok := a.state.Draft(); ok {
					ares, err := a.approve(ctx)
					if err != nil {
						return err
					}
					printOutcomes(cmd, ares.Outcomes)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "deliver audio at capture speed instead of all at once")
	cmd.Flags().BoolVar(&script, "script", false, "read KEYDOWN/KEYUP/WAIT commands from stdin")
	cmd.Flags().BoolVar(&approve, "approve", false, "approve a resulting invoice draft")
	return cmd
}

// runScript drives a fake hotkey from r through the same loop as live mode
// and returns the number of processed recordings.
func runScript(ctx context.Context, r io.Reader, a *app, rec *recorder, fctx *audio.FakeContext) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hk := hotkey.NewFake()
	hy := hotkey.NewHybrid(ctx, hk, hotkey.DefaultHoldThreshold)
	recordingDone := make(chan struct{}, 1)

	counted := make(chan int, 1)
	go func() { counted <- rec.listen(ctx, hy, newUIControl(), recordingDone) }()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "KEYDOWN":
			hk.SimKeydown()
		case line == "KEYUP":
			hk.SimKeyup()
		case line == "WAIT":
			select {
			case <-recordingDone:
			case <-ctx.Done():
			}
		case line == "WAIT_AUDIO_DONE":
			if done := fctx.AudioDone(); done != nil {
				<-done
			}
		case line == "APPROVE":
			a.approve(ctx)
		case line == "DISCARD":
			a.engine.Discard()
		case line == "QUIT":
			cancel()
			return <-counted
		case strings.HasPrefix(line, "SLEEP "):
			if ms, err := strconv.Atoi(strings.TrimPrefix(line, "SLEEP ")); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	}
	cancel()
	return <-counted
}
