package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must be set")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validatePhotos(); err != nil {
		return err
	}
	if c.Mail.RequestTimeoutSeconds <= 0 {
		return errors.New("mail.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return errors.New("server.shutdown_timeout_seconds must be positive")
	}
	if c.Server.TokenTTLHours <= 0 {
		return errors.New("server.token_ttl_hours must be positive")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.TimeoutSeconds <= 0 {
		return errors.New("matching.timeout_seconds must be positive")
	}
	if c.Matching.MaxCandidates < 0 {
		return errors.New("matching.max_candidates must be zero (unlimited) or positive")
	}
	if c.Matching.Concurrency < 1 {
		return errors.New("matching.concurrency must be at least 1")
	}
	if c.Matching.ClassifierTimeoutSeconds <= 0 {
		return errors.New("matching.classifier_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Provider {
	case ProviderHeuristic:
		if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
			return errors.New("classifier.threshold must be in (0, 1]")
		}
	case ProviderHTTP:
		if strings.TrimSpace(c.Classifier.URL) == "" {
			return errors.New("classifier.url must be set when classifier.provider is \"http\"")
		}
	case ProviderGemini:
		if strings.TrimSpace(c.Classifier.APIKey) == "" {
			return errors.New("classifier.api_key (or GEMINI_API_KEY) must be set when classifier.provider is \"gemini\"")
		}
		if strings.TrimSpace(c.Classifier.Model) == "" {
			return errors.New("classifier.model must be set when classifier.provider is \"gemini\"")
		}
	default:
		return fmt.Errorf("classifier.provider %q is not one of heuristic, http, gemini", c.Classifier.Provider)
	}
	if c.Classifier.MaxRetries < 0 {
		return errors.New("classifier.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validatePhotos() error {
	if c.Photos.MaxUploadMB <= 0 {
		return errors.New("photos.max_upload_mb must be positive")
	}
	if c.Photos.MaxDimension <= 0 || c.Photos.ThumbDimension <= 0 {
		return errors.New("photos.max_dimension and photos.thumb_dimension must be positive")
	}
	switch c.Photos.Backend {
	case BackendSQLite:
	case BackendS3:
		if strings.TrimSpace(c.Photos.S3.Bucket) == "" {
			return errors.New("photos.s3.bucket must be set when photos.backend is \"s3\"")
		}
		if strings.TrimSpace(c.Photos.S3.Region) == "" {
			return errors.New("photos.s3.region must be set when photos.backend is \"s3\"")
		}
		if c.Photos.S3.PresignMinutes <= 0 {
			return errors.New("photos.s3.presign_minutes must be positive")
		}
	default:
		return fmt.Errorf("photos.backend %q is not one of sqlite, s3", c.Photos.Backend)
	}
	return nil
}
