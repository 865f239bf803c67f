// Package classifier turns a transcript into a typed intent using a chat
// completion model in JSON mode.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/butancak6/constructionos/intent"
)

const (
	DefaultModel   = "llama-3.3-70b-versatile"
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
)

var ErrClassificationFailed = errors.New("classification failed")

type Classifier interface {
	Name() string
	Classify(ctx context.Context, transcript string, now time.Time) (intent.Intent, error)
}

const systemPrompt = `You are the AI Operating System for a construction business.
Input: Raw voice transcription (may contain phonetic typos: "Ingeauch"->"Invoice", "Skedule"->"Schedule").
Output: Strictly formatted JSON.

CLASSIFY INTENT (Pick One):
'create_invoice': Billing, money, completed jobs.
'create_calendar': Meetings, visits, appointments.
'create_task': To-dos, lists, reminders.
'create_client': Contact info (names, phones).

RETURN JSON (Select structure):
IF Invoice: { "intent": "create_invoice", "client_name": "String", "items": ["String"], "total": Number }
IF Calendar: { "intent": "create_calendar", "title": "String", "start_time": "ISO String (Estimate future date from now)", "duration_minutes": Number }
IF Task: { "intent": "create_task", "description": "String", "priority": "High" | "Medium" | "Low" }
IF Client: { "intent": "create_client", "name": "String", "phone": "String or null", "address": "String or null" }`

// UserMessage renders the per-request prompt.
func UserMessage(transcript string, now time.Time) string {
	return fmt.Sprintf("Current Date: %s\nTranscription: \"%s\"", now.UTC().Format("2006-01-02T15:04:05.000Z"), transcript)
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Groq classifies through any OpenAI-compatible chat completions endpoint;
// Groq is the default.
type Groq struct {
	client openai.Client
	model  string

	mu       sync.Mutex
	lastRaw  string
	lastUsed int64
}

func NewGroq(cfg Config) *Groq {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(1),
	)
	return &Groq{client: client, model: cfg.Model}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) Classify(ctx context.Context, transcript string, now time.Time) (intent.Intent, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(UserMessage(transcript, now)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s API error %d: %w", ErrClassificationFailed, g.Name(), apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrClassificationFailed)
	}

	raw := resp.Choices[0].Message.Content
	g.mu.Lock()
	g.lastRaw = raw
	g.lastUsed = resp.Usage.TotalTokens
	g.mu.Unlock()

	return parse(raw)
}

// LastRaw returns the raw JSON of the most recent response and its token
// usage.
func (g *Groq) LastRaw() (string, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRaw, g.lastUsed
}

func parse(raw string) (intent.Intent, error) {
	in, err := intent.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}
	return in, nil
}
