package observers

import "github.com/hashicorp/go-hclog"

// NewDefaultLoggingObserver creates a logging observer at INFO level on stderr
func NewDefaultLoggingObserver() *LoggingObserver {
	return NewLoggingObserver(hclog.New(&hclog.LoggerOptions{
		Name:  "exflow",
		Level: hclog.Info,
	}))
}
