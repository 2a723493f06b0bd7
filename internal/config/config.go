// Package config loads splitbill settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"

	"github.com/mmynk/splitbill/internal/calculator"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP
	HTTPAddr           string `conf:"default::8080,env:HTTP_ADDR"`
	CORSAllowedOrigins string `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`
	RateLimitPerMinute int    `conf:"default:120,env:RATE_LIMIT_PER_MINUTE"`

	// Storage
	DBPath string `conf:"default:./data/splitbill.db,env:DB_PATH"`

	// Logging
	LogLevel  string `conf:"default:info,enum:debug|info|warn|error,env:LOG_LEVEL"`
	LogFormat string `conf:"default:text,enum:text|json,env:LOG_FORMAT"`

	// Splitting
	AssignmentPolicy string `conf:"default:tolerate,env:ASSIGNMENT_POLICY"`

	// Remote backends. An empty URL disables the feature.
	RecognitionURL  string        `conf:"env:RECOGNITION_URL"`
	ShareURL        string        `conf:"env:SHARE_URL"`
	RemoteTimeout   time.Duration `conf:"default:15s,env:REMOTE_TIMEOUT"`
	ShareSigningKey string        `conf:"env:SHARE_SIGNING_KEY,noprint"`

	// API auth. An empty secret disables bearer authentication.
	APITokenSecret string `conf:"env:API_TOKEN_SECRET,noprint"`
}

// Load reads configuration from environment variables with sensible defaults.
// It returns conf.ErrHelpWanted when --help was requested.
func Load() (*Config, error) {
	var cfg Config
	_ = godotenv.Load()
	if _, err := conf.Parse("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage returns the --help text for Config.
func Usage() (string, error) {
	var cfg Config
	return conf.UsageInfo("", &cfg)
}

// Policy returns the parsed assignment policy.
func (c *Config) Policy() calculator.AssignmentPolicy {
	p, err := calculator.ParsePolicy(c.AssignmentPolicy)
	if err != nil {
		return calculator.PolicyTolerate
	}
	return p
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks settings that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []string

	if _, err := calculator.ParsePolicy(c.AssignmentPolicy); err != nil {
		errs = append(errs, fmt.Sprintf("ASSIGNMENT_POLICY: %v", err))
	}
	for _, env := range []struct{ name, raw string }{
		{"RECOGNITION_URL", c.RecognitionURL},
		{"SHARE_URL", c.ShareURL},
	} {
		if env.raw == "" {
			continue
		}
		u, err := url.Parse(env.raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute http(s) URL", env.name))
		}
	}
	if c.ShareURL != "" && c.ShareSigningKey == "" {
		errs = append(errs, "SHARE_SIGNING_KEY is required when SHARE_URL is set")
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.RemoteTimeout <= 0 {
		errs = append(errs, "REMOTE_TIMEOUT must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
}
