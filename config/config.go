// Package config loads settings from defaults, an optional TOML file and
// CONSTRUCTIONOS_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONSTRUCTIONOS"

var ErrMissingAPIKey = errors.New("groq_api_key is not set")

type Remote struct {
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	APIKey string `mapstructure:"api_key" validate:"required_with=URL"`
}

type Config struct {
	GroqAPIKey        string        `mapstructure:"groq_api_key"`
	TranscribeModel   string        `mapstructure:"transcribe_model" validate:"required"`
	ClassifyModel     string        `mapstructure:"classify_model" validate:"required"`
	Language          string        `mapstructure:"language"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout" validate:"gt=0"`
	ClassifyTimeout   time.Duration `mapstructure:"classify_timeout" validate:"gt=0"`
	MinTranscriptLen  int           `mapstructure:"min_transcript_chars" validate:"gte=1"`
	DBPath            string        `mapstructure:"db_path" validate:"required"`
	Remote            Remote        `mapstructure:"remote"`
	WebhookURL        string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	QueueDir          string        `mapstructure:"queue_dir" validate:"required"`
	Device            string        `mapstructure:"device"`
	MetricsAddr       string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	MaxRecording      time.Duration `mapstructure:"max_recording"`
}

// RequireAPIKey fails when commands that talk to the models have no key.
func (c *Config) RequireAPIKey() error {
	if c.GroqAPIKey == "" {
		return fmt.Errorf("%w: set %s_GROQ_API_KEY or add it to %s", ErrMissingAPIKey, EnvPrefix, DefaultPath())
	}
	return nil
}

// DataDir is ~/.construction-os.
func DataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".construction-os")
	}
	return ".construction-os"
}

// DefaultPath is where Load looks for a config file when none is given.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "constructionos", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "constructionos", "config.toml")
	}
	return "config.toml"
}

// New returns a viper instance with defaults and environment binding, but
// no file read yet. Flags can be bound into it before Load.
func New() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefault(v)
	// The key name used by the desktop app's .env files.
	v.BindEnv("groq_api_key", EnvPrefix+"_GROQ_API_KEY", "GROQ_API_KEY")
	return v
}

func setDefault(v *viper.Viper) {
	data := DataDir()
	v.SetDefault("groq_api_key", "")
	v.SetDefault("transcribe_model", "whisper-large-v3-turbo")
	v.SetDefault("classify_model", "llama-3.3-70b-versatile")
	v.SetDefault("language", "en")
	v.SetDefault("transcribe_timeout", 60*time.Second)
	v.SetDefault("classify_timeout", 30*time.Second)
	v.SetDefault("min_transcript_chars", 5)
	v.SetDefault("db_path", filepath.Join(data, "construction.db"))
	v.SetDefault("remote__url", "")
	v.SetDefault("remote__api_key", "")
	v.SetDefault("webhook_url", "")
	v.SetDefault("queue_dir", filepath.Join(data, "queue"))
	v.SetDefault("device", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("max_recording", time.Duration(0))
}

// Load reads path (or DefaultPath when empty; a missing default file is not
// an error), unmarshals and validates.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.DBPath = expandTilde(cfg.DBPath)
	cfg.QueueDir = expandTilde(cfg.QueueDir)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
