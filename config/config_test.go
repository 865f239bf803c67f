package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("CONSTRUCTIONOS_GROQ_API_KEY", "")
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "whisper-large-v3-turbo", cfg.TranscribeModel)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.ClassifyModel)
	assert.Equal(t, 60*time.Second, cfg.TranscribeTimeout)
	assert.Equal(t, 30*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, 5, cfg.MinTranscriptLen)
	assert.Equal(t, "construction.db", filepath.Base(cfg.DBPath))
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrMissingAPIKey)
}

func TestFileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
groq_api_key = "from-file"
classify_timeout = "10s"
min_transcript_chars = 3
webhook_url = "https://hooks.example.com/inv"

[remote]
url = "https://db.example.com"
api_key = "anon"
`), 0644))

	t.Setenv("CONSTRUCTIONOS_GROQ_API_KEY", "from-env")
	t.Setenv("CONSTRUCTIONOS_REMOTE__API_KEY", "service")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GroqAPIKey)
	assert.Equal(t, 10*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, 3, cfg.MinTranscriptLen)
	assert.Equal(t, "https://db.example.com", cfg.Remote.URL)
	assert.Equal(t, "service", cfg.Remote.APIKey)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestFallbackKeyName(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", "plain")
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.GroqAPIKey)
}

func TestExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
webhook_url = "not a url"
min_transcript_chars = 0
`), 0644))
	_, err := Load(New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WebhookURL")
	assert.Contains(t, err.Error(), "MinTranscriptLen")
}

func TestRemoteKeyRequiredWithURL(t *testing.T) {
	isolate(t)
	t.Setenv("CONSTRUCTIONOS_REMOTE__URL", "https://db.example.com")
	_, err := Load(New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}
