package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"        validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database"      validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth"          validate:"required"`
	Storage       StorageConfig       `mapstructure:"storage"       validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	Notes         NotesConfig         `mapstructure:"notes"         validate:"required"`
	Retry         RetryConfig         `mapstructure:"retry"         validate:"required"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"       validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings for the HTTP API.
// APIKeyHash is a bcrypt hash of the API key exchanged for access tokens.
type AuthConfig struct {
	APIKeyHash    string        `mapstructure:"api_key_hash" validate:"required"`
	JWTSecret     string        `mapstructure:"jwt_secret"   validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`
}

// StorageConfig configures the S3-compatible blob store.
type StorageConfig struct {
	Bucket         string        `mapstructure:"bucket" validate:"required"`
	Region         string        `mapstructure:"region" validate:"required"`
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	SignedURLTTL   time.Duration `mapstructure:"signed_url_ttl" validate:"required"`
}

// TranscriptionConfig controls audio preparation and the chunk
// transcription pool.
type TranscriptionConfig struct {
	SonioxAPIKey   string `mapstructure:"soniox_api_key" validate:"required"`
	SonioxEndpoint string `mapstructure:"soniox_endpoint"`

	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`

	ChunkSeconds    int           `mapstructure:"chunk_seconds"     validate:"required,gt=0"`
	Concurrency     int           `mapstructure:"concurrency"       validate:"required,gt=0"`
	PerChunkTimeout time.Duration `mapstructure:"per_chunk_timeout" validate:"required"`
	BaseTimeout     time.Duration `mapstructure:"base_timeout"      validate:"required"`
}

// NotesConfig controls the study-note generation fallback chain.
type NotesConfig struct {
	OpenAIAPIKey string `mapstructure:"openai_api_key" validate:"required"`
	OpenAIModel  string `mapstructure:"openai_model"   validate:"required"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	GeminiModel  string `mapstructure:"gemini_model"   validate:"required"`

	MaxRetries int           `mapstructure:"max_retries" validate:"required,gt=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay"  validate:"required"`
}

// RetryConfig controls the retry scheduler and stuck-job recovery. The
// ladder is the sequence of waits between successive retries; it is passed
// into the scheduler explicitly so tests can inject short ladders.
type RetryConfig struct {
	Period    time.Duration   `mapstructure:"period"     validate:"required"`
	BatchSize int             `mapstructure:"batch_size" validate:"required,gt=0"`
	Ladder    []time.Duration `mapstructure:"ladder"     validate:"required,min=1"`
	StuckAge  time.Duration   `mapstructure:"stuck_age"  validate:"required"`
}

// CleanupConfig controls the periodic deletion of old job records.
type CleanupConfig struct {
	Period       time.Duration `mapstructure:"period"        validate:"required"`
	CompletedTTL time.Duration `mapstructure:"completed_ttl" validate:"required"`
	FailedTTL    time.Duration `mapstructure:"failed_ttl"    validate:"required"`
	BatchSize    int           `mapstructure:"batch_size"    validate:"required,gt=0"`
}
