package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
)

// postWhisper uploads a WAV file to an OpenAI-compatible
// /audio/transcriptions endpoint.
func (b *baseTranscriber) postWhisper(ctx context.Context, provider string, wav []byte, responseFormat string) (*TracedResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, err
	}

	writer.WriteField("model", b.model)
	writer.WriteField("response_format", responseFormat)
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %w", ErrTranscriptionFailed, provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s API error %d: %s", ErrTranscriptionFailed, provider, resp.StatusCode, string(resp.Body))
	}
	return resp, nil
}
