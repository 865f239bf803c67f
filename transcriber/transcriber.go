package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTranscriptionFailed wraps every provider failure: transport, non-200
// status, unparseable body or deadline.
var ErrTranscriptionFailed = errors.New("transcription failed")

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

// Transcriber turns one complete WAV utterance into text.
type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	Transcribe(ctx context.Context, wav []byte) (*Result, error)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

type Config struct {
	Provider string // "groq" or "openai"
	APIKey   string
	Model    string
	Language string
	BaseURL  string // overrides the provider endpoint, used by tests
}

func New(cfg Config) (Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s transcription", cfg.Provider)
	}
	var t Transcriber
	switch cfg.Provider {
	case "", "groq":
		t = NewGroq(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "openai":
		t = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
	if cfg.Language != "" {
		t.SetLanguage(cfg.Language)
	}
	return t, nil
}
