package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/butancak6/constructionos/encoder"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	for _, tt := range []struct{ provider, want string }{
		{"", "groq"},
		{"groq", "groq"},
		{"openai", "openai"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			tr, err := New(Config{Provider: tt.provider, APIKey: "k", Language: "en"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if tr.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.want)
			}
			if tr.GetLanguage() != "en" {
				t.Errorf("language = %q, want en", tr.GetLanguage())
			}
		})
	}
	t.Run("missing key", func(t *testing.T) {
		if _, err := New(Config{Provider: "groq"}); err == nil {
			t.Error("expected error without API key")
		}
	})
	t.Run("unknown", func(t *testing.T) {
		if _, err := New(Config{Provider: "deepspeech", APIKey: "k"}); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}

func TestGroqTranscribe(t *testing.T) {
	wav := encoder.EncodeWAV(make([]float32, 1600), encoder.SampleRate)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != DefaultGroqModel {
			t.Errorf("model = %q, want %q", got, DefaultGroqModel)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		body, _ := io.ReadAll(f)
		if len(body) != len(wav) {
			t.Errorf("uploaded %d bytes, want %d", len(body), len(wav))
		}

		w.Header().Set("x-ratelimit-remaining-requests", "99")
		w.Header().Set("x-ratelimit-limit-requests", "100")
		io.WriteString(w, `{"text":" invoice Jason Park","duration":0.1,"segments":[
			{"text":"invoice","no_speech_prob":0.1,"avg_logprob":-0.2},
			{"text":"Jason Park","no_speech_prob":0.3,"avg_logprob":-0.4}]}`)
	}))
	defer srv.Close()

	g := NewGroq("test-key", "", srv.URL)
	res, err := g.Transcribe(context.Background(), wav)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != " invoice Jason Park" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.RateLimit != "99/100" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
	if res.NoSpeechProb != 0.3 {
		t.Errorf("NoSpeechProb = %v, want 0.3", res.NoSpeechProb)
	}
	if len(res.Segments) != 2 {
		t.Errorf("segments = %d, want 2", len(res.Segments))
	}
}

func TestGroqTranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{"server error", http.StatusInternalServerError, "boom", "groq API error 500"},
		{"bad json", http.StatusOK, "not json", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewGroq("k", "", srv.URL).Transcribe(context.Background(), []byte("x"))
			if !errors.Is(err, ErrTranscriptionFailed) {
				t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestTranscribeHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewOpenAI("k", "", srv.URL).Transcribe(ctx, []byte("x"))
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Errorf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestFakeTranscriber(t *testing.T) {
	f := NewFake("call supplier", nil)
	res, err := f.Transcribe(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "call supplier" || f.Calls() != 1 || string(f.Last()) != "wav" {
		t.Errorf("unexpected fake state: %q calls=%d", res.Text, f.Calls())
	}

	_, err = NewFake("", errors.New("offline")).Transcribe(context.Background(), nil)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Errorf("err = %v, want ErrTranscriptionFailed", err)
	}
}
