// Package config loads the najdeno TOML configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP listener settings.
type Server struct {
	Addr                   string `toml:"addr"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
	TokenTTLHours          int    `toml:"token_ttl_hours"`
	AllowRegistration      bool   `toml:"allow_registration"`
}

// Database contains the SQLite location.
type Database struct {
	Path string `toml:"path"`
}

// Logging contains log output settings.
type Logging struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Matching bounds the background matching workflow.
type Matching struct {
	TimeoutSeconds           int `toml:"timeout_seconds"`
	MaxCandidates            int `toml:"max_candidates"`
	Concurrency              int `toml:"concurrency"`
	ClassifierTimeoutSeconds int `toml:"classifier_timeout_seconds"`
}

// Classifier selects and configures the match classifier.
type Classifier struct {
	// Provider is one of "heuristic", "http" or "gemini".
	Provider   string  `toml:"provider"`
	Threshold  float64 `toml:"threshold"`
	URL        string  `toml:"url"`
	APIKey     string  `toml:"api_key"`
	Model      string  `toml:"model"`
	MaxRetries int     `toml:"max_retries"`
}

// S3 contains object storage settings for the s3 photo backend.
type S3 struct {
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	PresignMinutes int    `toml:"presign_minutes"`
}

// Photos contains upload limits and the storage backend.
type Photos struct {
	// Backend is "sqlite" or "s3".
	Backend        string `toml:"backend"`
	MaxUploadMB    int    `toml:"max_upload_mb"`
	MaxDimension   int    `toml:"max_dimension"`
	ThumbDimension int    `toml:"thumb_dimension"`
	S3             S3     `toml:"s3"`
}

// Mail configures the outgoing mail webhook. Notifications are recorded as
// in-app only when WebhookURL is empty.
type Mail struct {
	WebhookURL            string `toml:"webhook_url"`
	Token                 string `toml:"token"`
	From                  string `toml:"from"`
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values.
type Config struct {
	Server     Server     `toml:"server"`
	Database   Database   `toml:"database"`
	Logging    Logging    `toml:"logging"`
	Matching   Matching   `toml:"matching"`
	Classifier Classifier `toml:"classifier"`
	Photos     Photos     `toml:"photos"`
	Mail       Mail       `toml:"mail"`
}

// Load returns the defaults overlaid with the file at path. An empty path
// yields the defaults. Secrets may also come from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("NAJDENO_CLASSIFIER_API_KEY")); v != "" {
		c.Classifier.APIKey = v
	}
	if c.Classifier.Provider == ProviderGemini && c.Classifier.APIKey == "" {
		c.Classifier.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if v := strings.TrimSpace(os.Getenv("NAJDENO_MAIL_TOKEN")); v != "" {
		c.Mail.Token = v
	}
}

// SampleConfig returns the annotated sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// MatchTimeout returns the overall bound of one matching run.
func (c *Config) MatchTimeout() time.Duration {
	return time.Duration(c.Matching.TimeoutSeconds) * time.Second
}

// ClassifierTimeout returns the bound of a single classifier call.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Matching.ClassifierTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long the server waits for in-flight work.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued bearer tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Server.TokenTTLHours) * time.Hour
}
