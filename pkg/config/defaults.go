package config

import (
	"os"
	"reflect"
	"time"
)

// DefaultHTTPClient mirrors the retry policy used for outbound calls
func DefaultHTTPClient() HTTPClient {
	return HTTPClient{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 2 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// ApplyDefaults fills unset values. Environment variables override the
// storage and lock endpoints.
func ApplyDefaults(cfg *Config) {
	cfg.Logger.Level = SetThen(cfg.Logger.Level, "INFO")

	cfg.Server.Addr = SetThen(cfg.Server.Addr, ":8080")
	cfg.Server.ReadTimeout = SetThen(cfg.Server.ReadTimeout, 15*time.Second)
	cfg.Server.WriteTimeout = SetThen(cfg.Server.WriteTimeout, 15*time.Second)

	cfg.Storage.DatabaseURL = SetThen(os.Getenv("EXFLOW_DATABASE_URL"), cfg.Storage.DatabaseURL)
	cfg.Storage.Driver = SetThen(cfg.Storage.Driver, StorageMemory)

	cfg.Lock.RedisAddr = SetThen(os.Getenv("EXFLOW_REDIS_ADDR"), cfg.Lock.RedisAddr)
	cfg.Lock.Driver = SetThen(cfg.Lock.Driver, LockMemory)
	cfg.Lock.TTL = SetThen(cfg.Lock.TTL, 30*time.Second)

	applyHTTPDefaults(&cfg.Directory.HTTPClient)
	applyHTTPDefaults(&cfg.Notify.HTTPClient)

	cfg.Workflow.GracePeriod = SetThen(cfg.Workflow.GracePeriod, 30*24*time.Hour)
}

func applyHTTPDefaults(c *HTTPClient) {
	def := DefaultHTTPClient()
	c.RetryWaitTime = SetThen(c.RetryWaitTime, def.RetryWaitTime)
	c.RetryMaxWaitTime = SetThen(c.RetryMaxWaitTime, def.RetryMaxWaitTime)
	c.Timeout = SetThen(c.Timeout, def.Timeout)
}

// GetBoolValue returns *value, or defaultValue when value is nil
func GetBoolValue(value *bool, defaultValue bool) bool {
	if value == nil {
		return defaultValue
	}
	return *value
}

// SetThen selects value if set, otherwise defaultValue
func SetThen[T any](value T, defaultValue T) T {
	if reflect.ValueOf(value).IsZero() {
		return defaultValue
	}
	return value
}
