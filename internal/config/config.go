package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"MF_ENV" default:"development"`

	HTTPPort    int           `envconfig:"MF_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"MF_HTTP_TIMEOUT" default:"15s"`

	MaxConcurrency  int           `envconfig:"MF_MAX_CONCURRENCY" default:"5"`
	TransferTimeout time.Duration `envconfig:"MF_TRANSFER_TIMEOUT" default:"30m"`
	HeaderTimeout   time.Duration `envconfig:"MF_HEADER_TIMEOUT" default:"30s"`
	ChunkSize       int           `envconfig:"MF_CHUNK_SIZE" default:"32768"`
	UserAgent       string        `envconfig:"MF_USER_AGENT" default:"mirrorfetch/1.0"`

	MaxAttempts          int           `envconfig:"MF_MAX_ATTEMPTS" default:"6"`
	MaxSameMirrorRetries int           `envconfig:"MF_MAX_SAME_MIRROR_RETRIES" default:"2"`
	RetryBackoff         time.Duration `envconfig:"MF_RETRY_BACKOFF" default:"2s"`
	RateLimitBackoff     time.Duration `envconfig:"MF_RATE_LIMIT_BACKOFF" default:"10s"`

	SuccessIncrement float64  `envconfig:"MF_SUCCESS_INCREMENT" default:"0.1"`
	MinorPenalty     float64  `envconfig:"MF_MINOR_PENALTY" default:"0.05"`
	ModeratePenalty  float64  `envconfig:"MF_MODERATE_PENALTY" default:"0.15"`
	SeverePenalty    float64  `envconfig:"MF_SEVERE_PENALTY" default:"0.3"`
	FailureThreshold int      `envconfig:"MF_FAILURE_THRESHOLD" default:"5"`
	RecencyWindow    int      `envconfig:"MF_RECENCY_WINDOW" default:"3"`
	RecencyPenalty   float64  `envconfig:"MF_RECENCY_PENALTY" default:"0.3"`
	CountryBonus     float64  `envconfig:"MF_COUNTRY_BONUS" default:"1.5"`
	PreferredCountry []string `envconfig:"MF_PREFERRED_COUNTRIES"`

	DownloadDir string `envconfig:"MF_DOWNLOAD_DIR" default:"./storage"`
	MirrorsFile string `envconfig:"MF_MIRRORS_FILE" default:"./mirrors.json"`
	StateFile   string `envconfig:"MF_STATE_FILE" default:"./state.json"`

	ShutdownTimeout time.Duration `envconfig:"MF_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"MF_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"MF_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive: %d", c.MaxConcurrency)
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive: %d", c.MaxAttempts)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.ChunkSize)
	}

	if c.SuccessIncrement <= 0 || c.SuccessIncrement > 1 {
		return fmt.Errorf("success increment must be in (0,1]: %g", c.SuccessIncrement)
	}

	for _, p := range []float64{c.MinorPenalty, c.ModeratePenalty, c.SeverePenalty} {
		if p <= 0 || p > 1 {
			return fmt.Errorf("health penalty must be in (0,1]: %g", p)
		}
	}

	if c.RecencyPenalty <= 0 || c.RecencyPenalty > 1 {
		return fmt.Errorf("recency penalty must be in (0,1]: %g", c.RecencyPenalty)
	}

	if c.CountryBonus < 1 {
		return fmt.Errorf("country bonus must be at least 1: %g", c.CountryBonus)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.MirrorsFile == "" {
		return fmt.Errorf("mirrors file cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	return nil
}
