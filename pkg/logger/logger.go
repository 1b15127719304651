package logger

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow/pkg/config"
)

// NewLogger creates a new hclog.Logger based on the configuration and the provided name.
// EXFLOW_LOG_LEVEL takes precedence over the configured level.
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	var opts config.Logger
	if cfg != nil {
		opts = cfg.Logger
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: config.GetBoolValue(opts.DisableTime, true),
		JSONFormat:  config.GetBoolValue(opts.JSONFormat, false),
		Output:      os.Stdout,
		Level:       determineLogLevel(opts.Level),
	})
}

// determineLogLevel returns the level from the environment, then the configuration, defaulting to INFO.
func determineLogLevel(configured string) hclog.Level {
	if logLevelEnv := os.Getenv("EXFLOW_LOG_LEVEL"); logLevelEnv != "" {
		return parseLogLevel(strings.ToUpper(logLevelEnv))
	}
	return parseLogLevel(strings.ToUpper(configured))
}

// parseLogLevel converts a string level to hclog.Level.
func parseLogLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "", "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		hclog.New(&hclog.LoggerOptions{
			Level:       hclog.Warn,
			DisableTime: true,
			Output:      os.Stdout,
		}).Warn("Unrecognized log level, defaulting to INFO", "providedLevel", levelStr)
		return hclog.Info
	}
}
