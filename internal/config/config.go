// Package config loads and validates service configuration from the
// environment via Viper. The rest of the codebase consumes the resulting
// Config value and never reads environment variables directly.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully validated configuration value object handed to the
// application at startup.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	StartURL    string `mapstructure:"START_URL"`

	ScrapeTime string `mapstructure:"SCRAPE_TIME"`
	DumpTime   string `mapstructure:"DUMP_TIME"`

	ConcurrentRequests int `mapstructure:"CONCURRENT_REQUESTS"`
	RequestTimeoutSec  int `mapstructure:"REQUEST_TIMEOUT"`
	RetryAttempts      int `mapstructure:"RETRY_ATTEMPTS"`
	RetryDelaySec      int `mapstructure:"RETRY_DELAY"`
	MaxPages           int `mapstructure:"MAX_PAGES"`

	UserAgent string `mapstructure:"USER_AGENT"`

	DumpDir  string `mapstructure:"DUMP_DIR"`
	DumpKeep int    `mapstructure:"DUMP_KEEP"`

	DBMaxConns int32 `mapstructure:"DB_MAX_CONNS"`

	OpsAddr string `mapstructure:"OPS_ADDR"`

	GCSBucket     string `mapstructure:"GCS_BUCKET"`
	PubSubProject string `mapstructure:"PUBSUB_PROJECT"`
	PubSubTopic   string `mapstructure:"PUBSUB_TOPIC"`

	LogDev bool `mapstructure:"LOG_DEV"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// envKeys lists every recognized environment variable. Viper only picks up
// env values for keys it knows about, so each one is bound explicitly.
var envKeys = []string{
	"DATABASE_URL", "START_URL",
	"SCRAPE_TIME", "DUMP_TIME",
	"CONCURRENT_REQUESTS", "REQUEST_TIMEOUT", "RETRY_ATTEMPTS", "RETRY_DELAY",
	"MAX_PAGES", "USER_AGENT",
	"DUMP_DIR", "DUMP_KEEP", "DB_MAX_CONNS",
	"OPS_ADDR", "GCS_BUCKET", "PUBSUB_PROJECT", "PUBSUB_TOPIC", "LOG_DEV",
}

// Load builds a Config from the environment. A .env file in the working
// directory is honored when present; real environment variables win.
func Load() (Config, error) {
	// Ignore a missing .env; it is a local development convenience.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SCRAPE_TIME", "12:00")
	v.SetDefault("DUMP_TIME", "12:05")
	v.SetDefault("CONCURRENT_REQUESTS", 10)
	v.SetDefault("REQUEST_TIMEOUT", 30)
	v.SetDefault("RETRY_ATTEMPTS", 3)
	v.SetDefault("RETRY_DELAY", 5)
	v.SetDefault("MAX_PAGES", 500)
	v.SetDefault("USER_AGENT", defaultUserAgent)
	v.SetDefault("DUMP_DIR", "dumps")
	v.SetDefault("DUMP_KEEP", 7)
	v.SetDefault("DB_MAX_CONNS", 8)
	v.SetDefault("LOG_DEV", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.StartURL == "" {
		return fmt.Errorf("START_URL is required")
	}
	if _, err := ParseClockTime(c.ScrapeTime); err != nil {
		return fmt.Errorf("SCRAPE_TIME: %w", err)
	}
	if _, err := ParseClockTime(c.DumpTime); err != nil {
		return fmt.Errorf("DUMP_TIME: %w", err)
	}
	if c.ConcurrentRequests <= 0 {
		return fmt.Errorf("CONCURRENT_REQUESTS must be > 0")
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("RETRY_ATTEMPTS must be > 0")
	}
	if c.RetryDelaySec < 0 {
		return fmt.Errorf("RETRY_DELAY must be >= 0")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("MAX_PAGES must be > 0")
	}
	if c.DumpKeep <= 0 {
		return fmt.Errorf("DUMP_KEEP must be > 0")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be > 0")
	}
	if (c.PubSubProject == "") != (c.PubSubTopic == "") {
		return fmt.Errorf("PUBSUB_PROJECT and PUBSUB_TOPIC must be set together")
	}
	return nil
}

// RequestTimeout returns the per-attempt fetch timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RetryDelay returns the fixed wait between fetch attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// ClockTime is a time-of-day in the local timezone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses an HH:MM string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid HH:MM time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
