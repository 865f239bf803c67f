package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butancak6/constructionos/intent"
	"github.com/butancak6/constructionos/records"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func TestGroqClassify(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion(`{"intent":"create_task","description":"Call supplier","priority":"High"}`)))
	}))
	defer srv.Close()

	g := NewGroq(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	in, err := g.Classify(context.Background(), "remind me to call supplier", now)
	require.NoError(t, err)

	task, ok := in.(intent.CreateTask)
	require.True(t, ok, "got %T", in)
	assert.Equal(t, "Call supplier", task.Description)
	assert.Equal(t, records.PriorityHigh, task.Priority)

	assert.Equal(t, DefaultModel, req["model"])
	rf, _ := req["response_format"].(map[string]any)
	assert.Equal(t, "json_object", rf["type"])
	msgs, _ := req["messages"].([]any)
	require.Len(t, msgs, 2)
	user, _ := msgs[1].(map[string]any)
	assert.Equal(t, "Current Date: 2026-10-15T12:00:00.000Z\nTranscription: \"remind me to call supplier\"", user["content"])

	raw, tokens := g.LastRaw()
	assert.Contains(t, raw, "create_task")
	assert.Equal(t, int64(15), tokens)
}

func TestGroqMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion(`Sure! here is the JSON`)))
	}))
	defer srv.Close()

	_, err := NewGroq(Config{APIKey: "k", BaseURL: srv.URL + "/"}).Classify(context.Background(), "hello there", time.Now())
	assert.ErrorIs(t, err, ErrClassificationFailed)
	assert.ErrorIs(t, err, intent.ErrMalformed)
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewGroq(Config{APIKey: "bad", BaseURL: srv.URL + "/"}).Classify(context.Background(), "hello there", time.Now())
	require.ErrorIs(t, err, ErrClassificationFailed)
	assert.Contains(t, err.Error(), "401")
}

func TestFakeUnrecognized(t *testing.T) {
	f := NewFake(`{"intent":"create_expense"}`)
	_, err := f.Classify(context.Background(), "log an expense", time.Now())
	assert.ErrorIs(t, err, ErrClassificationFailed)
	assert.ErrorIs(t, err, intent.ErrUnrecognizedIntent)
	assert.Equal(t, []string{"log an expense"}, f.Calls())
}

func TestFakeError(t *testing.T) {
	f := NewFake("")
	boom := errors.New("boom")
	f.Set("", boom)
	_, err := f.Classify(context.Background(), "x", time.Now())
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Classify(ctx, "x", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
