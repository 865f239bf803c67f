package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	diagName       = "diagnostics_log.txt"
	transcribeName = "transcribe_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagFile       io.WriteCloser
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// Run summarises one pipeline run for the diagnostics log.
type Run struct {
	Source          string // "voice", "text" or "replay"
	Intent          string
	TranscriptChars int
	AudioS          float64
	TranscribeMs    float64
	ClassifyMs      float64
	TotalMs         float64
	Outcome         string
	Err             error
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: CONSTRUCTIONOS_LOG_PATH environment variable
	if envPath := os.Getenv("CONSTRUCTIONOS_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	transcribePath := filepath.Join(dir, transcribeName)
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	diagFile = &lumberjack.Logger{
		Filename:   filepath.Join(dir, diagName),
		MaxSize:    10, // MB
		MaxBackups: 5,
	}
	// lumberjack opens lazily; touch the file so a bad path fails here.
	if _, err := diagFile.Write(nil); err != nil {
		transcribeFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

// TranscriptionNetwork records the HTTP timings of one transcription call.
func TranscriptionNetwork(provider string, dnsMs, tlsMs, ttfbMs, totalMs float64, connReused bool, tlsProto string) {
	if !logReady {
		return
	}
	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}
	ev := diagLog.Info().
		Str("provider", provider).
		Str("conn", connStatus)
	if tlsProto != "" {
		ev = ev.Str("tls_proto", tlsProto)
	}
	ev.Float64("dns_ms", dnsMs).
		Float64("tls_ms", tlsMs).
		Float64("ttfb_ms", ttfbMs).
		Float64("total_ms", totalMs).
		Msg("transcription")
}

func SessionStart(provider, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}

func PipelineRun(r Run) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if r.Err != nil {
		ev = diagLog.Warn().Err(r.Err)
	}
	ev.Str("source", r.Source).
		Str("intent", r.Intent).
		Int("transcript_chars", r.TranscriptChars).
		Float64("audio_s", r.AudioS).
		Float64("transcribe_ms", r.TranscribeMs).
		Float64("classify_ms", r.ClassifyMs).
		Float64("total_ms", r.TotalMs).
		Str("outcome", r.Outcome).
		Msg("pipeline_run")
}

// SideEffect logs the result of one persistence side effect.
func SideEffect(sink, recordID string, err error) {
	if !logReady {
		return
	}
	if err != nil {
		diagLog.Warn().Str("sink", sink).Str("record", recordID).Err(err).Msg("side_effect")
		return
	}
	diagLog.Info().Str("sink", sink).Str("record", recordID).Msg("side_effect")
}
