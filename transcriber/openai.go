package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
)

const openAITranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(apiKey, model, apiURL string) *OpenAI {
	if apiURL == "" {
		apiURL = openAITranscriptionURL
	}
	if model == "" {
		model = "gpt-4o-transcribe"
	}
	return &OpenAI{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(),
			apiURL: apiURL,
			apiKey: apiKey,
			model:  model,
		},
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	resp, err := o.postWhisper(ctx, "openai", wav, "json")
	if err != nil {
		return nil, err
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("%w: openai response parse error: %w", ErrTranscriptionFailed, err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
