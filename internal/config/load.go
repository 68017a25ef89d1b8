package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values and
// use the LECTIO_ prefix with underscores for nesting, e.g.
// LECTIO_SERVER_PORT or LECTIO_DATABASE_URL.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables can carry everything.
	}

	v.SetEnvPrefix("LECTIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime", 24*time.Hour)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.signed_url_ttl", 24*time.Hour)

	v.SetDefault("transcription.soniox_endpoint", "https://api.soniox.com/v1/cloud/transcribe")
	v.SetDefault("transcription.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcription.ffprobe_path", "ffprobe")
	v.SetDefault("transcription.chunk_seconds", 360)
	v.SetDefault("transcription.concurrency", 3)
	v.SetDefault("transcription.per_chunk_timeout", 10*time.Minute)
	v.SetDefault("transcription.base_timeout", 10*time.Minute)

	v.SetDefault("notes.openai_model", "gpt-4.1-mini")
	v.SetDefault("notes.gemini_model", "gemini-2.0-flash")
	v.SetDefault("notes.max_retries", 3)
	v.SetDefault("notes.base_delay", time.Second)

	v.SetDefault("retry.period", 5*time.Minute)
	v.SetDefault("retry.batch_size", 100)
	v.SetDefault("retry.ladder", []time.Duration{
		5 * time.Minute,
		15 * time.Minute,
		time.Hour,
		4 * time.Hour,
		24 * time.Hour,
	})
	v.SetDefault("retry.stuck_age", 30*time.Minute)

	v.SetDefault("cleanup.period", 24*time.Hour)
	v.SetDefault("cleanup.completed_ttl", 30*24*time.Hour)
	v.SetDefault("cleanup.failed_ttl", 7*24*time.Hour)
	v.SetDefault("cleanup.batch_size", 100)
}
