package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/butancak6/constructionos/audio"
	"github.com/butancak6/constructionos/clipboard"
	"github.com/butancak6/constructionos/config"
	"github.com/butancak6/constructionos/doctor"
	"github.com/butancak6/constructionos/hotkey"
	"github.com/butancak6/constructionos/intent"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/notify"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/pipeline"
	"github.com/butancak6/constructionos/session"
	"github.com/butancak6/constructionos/shutdown"
)

var version = "dev"

type rootFlags struct {
	configPath string
	logPath    string
	device     string
	setup      bool
	hold       time.Duration
	headless   bool
	desktop    bool
	sound      bool
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:          "constructionos",
		Short:        "Voice commands for invoices, tasks, meetings and contacts",
		Long:         "Hold Ctrl+Shift+Space and speak a command (\"invoice Jason Park for HVAC, 500 dollars\"). The transcript is classified and turned into a draft record.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&f.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.StringVar(&f.device, "device", "", "use the capture device whose name contains this text")

	root.Flags().BoolVar(&f.setup, "setup", false, "select microphone device interactively")
	root.Flags().DurationVar(&f.hold, "longpress", hotkey.DefaultHoldThreshold, "long-press threshold for push-to-talk vs tap")
	root.Flags().BoolVar(&f.headless, "headless", false, "print events as lines instead of running the TUI")
	root.Flags().BoolVar(&f.desktop, "notify", true, "show desktop notifications")
	root.Flags().BoolVar(&f.sound, "sound", true, "beep when recording starts and stops")

	root.AddCommand(
		newTextCmd(f),
		newSimulateCmd(f),
		newReplayCmd(f),
		newDoctorCmd(f),
		newDevicesCmd(),
	)
	return root
}

// prepare loads configuration and starts diagnostic logging.
func prepare(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	v := config.New()
	if f.device != "" {
		v.Set("device", f.device)
	}
	cfg, err := config.Load(v, f.configPath)
	if err != nil {
		return nil, err
	}

	logPath, err := log.ResolveDir(f.logPath)
	if err != nil {
		return nil, fmt.Errorf("resolve log directory: %w", err)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not create log directory: %v\n", err)
		return cfg, nil
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not init logging: %v\n", err)
	}
	return cfg, nil
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func runLive(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := prepare(cmd, f)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if f.setup {
		device, err = audio.SelectDevice(actx)
		if err != nil && !errors.Is(err, audio.ErrSelectionCancelled) {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintln(cmd.ErrOrStderr(), "Falling back to default device")
		}
	} else if device, err = audio.FindDevice(actx, cfg.Device); err != nil {
		return err
	}

	var sink EventSink
	tsink := &tuiSink{}
	if f.headless {
		sink = newLineSink(cmd.OutOrStdout())
	} else {
		sink = tsink
	}

	a, err := newApp(ctx, cfg, appOptions{
		needModels: true,
		notify:     []notify.Option{notify.WithDesktop(f.desktop), notify.WithSound(f.sound)},
		onChange:   sink.StateChanged,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	rec := a.newRecorder(actx, device, sink)
	log.SessionStart(a.transcriber.Name(), rec.engine.DeviceName())

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return fmt.Errorf("registering hotkey: %w", err)
	}
	defer hk.Unregister()
	hy := hotkey.NewHybrid(ctx, hk, f.hold)
	ui := newUIControl()

	var tuiDone chan struct{}
	if !f.headless {
		ready := make(chan struct{})
		model := newTUIModel(a.state, tuiActions{
			ToggleRecord: func() { ui.toggle(rec.sess.State() == session.Recording) },
			Approve: func() {
				if res, err := a.approve(ctx); err == nil {
					watchOutcomes(pipeline.Result{Dispatch: res}, a.notifier)
				}
			},
			CopyDraft: func() { copyDraft(a) },
			Discard: func() {
				a.engine.Discard()
				a.state.Debug("Draft discarded")
			},
		}, func() { close(ready) }, deviceLineText(device), fmt.Sprintf("[%s | %s]", a.transcriber.Name(), cfg.ClassifyModel))

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		tsink.attach(p)
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				log.Errorf("TUI error: %v", err)
			}
			stop()
		}()
		select {
		case <-ready:
		case <-tuiDone:
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Listening. Hold or tap Ctrl+Shift+Space to record, Ctrl+C to quit.")
	}

	count := rec.listen(ctx, hy, ui, nil)
	log.SessionEnd(count)
	if tuiDone != nil {
		<-tuiDone
	}
	return nil
}

func copyDraft(a *app) {
	draft, ok := a.state.Draft()
	if !ok {
		a.notifier.Error("No invoice to copy.")
		return
	}
	if err := clipboard.CopyInvoice(draft); err != nil {
		log.Warnf("clipboard copy: %v", err)
		a.notifier.Error("Could not copy to clipboard.")
		return
	}
	a.notifier.Success("Invoice copied to clipboard")
}

// printOutcomes waits for a result's side effects and reports each one.
func printOutcomes(cmd *cobra.Command, ch <-chan persist.Outcome) {
	for _, o := range persist.Collect(ch) {
		if o.OK() {
			fmt.Fprintf(cmd.OutOrStdout(), "  saved to %s (%s)\n", o.Sink, o.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s failed: %v\n", o.Sink, o.Err)
		}
	}
}

func newTextCmd(f *rootFlags) *cobra.Command {
	var approve, copyOut bool
	cmd := &cobra.Command{
		Use:   "text <command...>",
		Short: "Classify and dispatch a typed command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer log.Close()
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{needModels: true})
			if err != nil {
				return err
			}
			defer a.Close()
			out := newLineSink(cmd.OutOrStdout())
			a.notifier.Subscribe(out.Toast)

			res, err := a.pipeline(nil).ProcessText(ctx, strings.Join(args, " "))
			out.Processed(res, err)
			if err != nil {
				a.notifier.Error(pipeline.ResultMessage(res, err))
				return err
			}
			a.notifier.Success(res.Dispatch.Message)
			printOutcomes(cmd, res.Dispatch.Outcomes)

			if res.Dispatch.Kind != intent.KindInvoice {
				return nil
			}
			if copyOut {
				copyDraft(a)
			}
			if approve {
				ares, err := a.approve(ctx)
				if err != nil {
					return err
				}
				printOutcomes(cmd, ares.Outcomes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the invoice draft right away")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the invoice draft to the clipboard")
	return cmd
}

func newReplayCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Retry recordings kept in the offline queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer log.Close()
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{needModels: true})
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.queue.Len(ctx)
			if err != nil {
				return err
			}
			if pending == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Offline queue is empty.")
				return nil
			}
			done, err := a.pipeline(nil).Replay(ctx, a.queue)
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d of %d queued recordings.\n", done, pending)
			for _, e := range a.state.DebugLog() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
			}
			return err
		},
	}
}

func newDoctorCmd(f *rootFlags) *cobra.Command {
	var withHotkey bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check microphone, API key and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer log.Close()
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			checks := []doctor.Check{doctor.APIKey(cfg.GroqAPIKey)}
			if withHotkey {
				checks = append(checks, doctor.Hotkey(hotkey.New(), cmd.OutOrStdout(), 10*time.Second))
			}
			actx, err := audio.NewContext()
			if err != nil {
				checks = append(checks, doctor.Check{Name: "Microphone", Run: func(context.Context) (string, error) {
					return "", fmt.Errorf("cannot connect to audio: %w", err)
				}})
			} else {
				defer actx.Close()
				dev, derr := audio.FindDevice(actx, cfg.Device)
				if derr != nil {
					return derr
				}
				checks = append(checks, doctor.Microphone(audio.NewEngine(actx, dev), deviceLineText(dev), 2*time.Second))
			}

			var remote, webhook persist.Pinger
			if a.remote != nil {
				remote = a.remote
			}
			if a.webhook != nil {
				webhook = a.webhook
			}
			checks = append(checks,
				doctor.Sink("Local database ("+cfg.DBPath+")", a.local),
				doctor.Sink("Remote database", remote),
				doctor.Sink("Webhook", webhook),
				doctor.Classifier(a.classifier),
			)

			if code := doctor.Run(ctx, cmd.OutOrStdout(), checks); code != 0 {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withHotkey, "hotkey", false, "also wait for a Ctrl+Shift+Space press")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			actx, err := audio.NewContext()
			if err != nil {
				return err
			}
			defer actx.Close()
			devices, err := actx.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No capture devices found.")
				return nil
			}
			for i, d := range devices {
				bt := ""
				if audio.IsBluetooth(d.Name) {
					bt = "  (bluetooth: low quality input)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s%s\n", i+1, d.Name, bt)
			}
			return nil
		},
	}
}
