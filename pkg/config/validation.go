package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidateConfig checks if the configuration has valid values
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML config: configuration object is nil")
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("YAML config: storage directive is invalid: %w", err)
	}
	if err := validateLock(&cfg.Lock); err != nil {
		return fmt.Errorf("YAML config: lock directive is invalid: %w", err)
	}
	if cfg.Directory.BaseURL != "" {
		if err := validateURL(cfg.Directory.BaseURL, "base_url"); err != nil {
			return fmt.Errorf("YAML config: directory directive is invalid: %w", err)
		}
	}
	if err := ValidateHTTPConfig(&cfg.Directory.HTTPClient); err != nil {
		return fmt.Errorf("YAML config: directory.http_client directive is invalid: %w", err)
	}
	if cfg.Notify.WebhookURL != "" {
		if err := validateURL(cfg.Notify.WebhookURL, "webhook_url"); err != nil {
			return fmt.Errorf("YAML config: notify directive is invalid: %w", err)
		}
	}
	if err := ValidateHTTPConfig(&cfg.Notify.HTTPClient); err != nil {
		return fmt.Errorf("YAML config: notify.http_client directive is invalid: %w", err)
	}
	if err := validateWorkflow(&cfg.Workflow); err != nil {
		return fmt.Errorf("YAML config: workflow directive is invalid: %w", err)
	}
	return nil
}

func validateStorage(s *Storage) error {
	switch s.Driver {
	case StorageMemory:
		return nil
	case StoragePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the %s driver", s.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unsupported driver %q", s.Driver)
	}
}

func validateLock(l *Lock) error {
	if err := validateDuration(l.TTL, "ttl", 10*time.Minute); err != nil {
		return err
	}
	switch l.Driver {
	case LockMemory:
		return nil
	case LockRedis:
		if l.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the %s driver", l.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unsupported driver %q", l.Driver)
	}
}

func validateWorkflow(w *Workflow) error {
	if w.MaxRetries != nil && (*w.MaxRetries < 0 || *w.MaxRetries > 20) {
		return fmt.Errorf("max_retries must be between 0 and 20: %d", *w.MaxRetries)
	}
	return validateDuration(w.GracePeriod, "grace_period", 365*24*time.Hour)
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}
	return nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

func validateURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL: %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", name, raw)
	}
	return nil
}
