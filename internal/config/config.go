package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvFile is read before the environment is processed. Variables already set win.
var EnvFile = ".env"

// Config struct for environment variables.
type Config struct {
	APIURL            string        `envconfig:"SOCIFY_API_URL" default:"https://socify-backend-production.up.railway.app"`
	TargetDir         string        `envconfig:"TARGET_DIR" default:"."`
	AutoSaveDelay     time.Duration `envconfig:"AUTO_SAVE_DELAY" default:"500ms"`
	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"5"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	// MaxBytesPerSecond caps the combined retrieval bandwidth; 0 means unlimited.
	MaxBytesPerSecond int64         `envconfig:"MAX_BYTES_PER_SECOND" default:"0"`

	Telemetry struct {
		Enabled        bool          `default:"true"`
		OTLPEndpoint   string        `envconfig:"OTLP_ENDPOINT"`
		ExportInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s: %w", EnvFile, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values flags and env vars can get wrong.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("SOCIFY_API_URL must not be empty")
	}

	if c.MaxParallel < 1 {
		return fmt.Errorf("MAX_PARALLEL must be at least 1, got %d", c.MaxParallel)
	}

	if c.MaxBytesPerSecond < 0 {
		return fmt.Errorf("MAX_BYTES_PER_SECOND must not be negative, got %d", c.MaxBytesPerSecond)
	}

	if c.AutoSaveDelay < 0 {
		return fmt.Errorf("AUTO_SAVE_DELAY must not be negative, got %s", c.AutoSaveDelay)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
