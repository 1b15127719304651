package httpclient

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow/pkg/config"
)

// HclogAdapter adapts an hclog.Logger to be compatible with the resty log.Logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a new adapter that will forward messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) resty.Logger {
	return &HclogAdapter{logger: logger}
}

// Errorf logs a message at error level.
func (a *HclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf logs a message at warning level.
func (a *HclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf logs a message at debug level.
func (a *HclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// New initializes a resty client from the http_client configuration.
// Transport errors and 5xx responses are retried.
func New(logger hclog.Logger, cfg config.HTTPClient) *resty.Client {
	client := resty.New()
	if logger != nil {
		client.SetLogger(NewHclogAdapter(logger))
	}

	def := config.DefaultHTTPClient()
	client.
		SetDebug(cfg.Debug).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(config.SetThen(cfg.RetryWaitTime, def.RetryWaitTime)).
		SetRetryMaxWaitTime(config.SetThen(cfg.RetryMaxWaitTime, def.RetryMaxWaitTime)).
		SetTimeout(config.SetThen(cfg.Timeout, def.Timeout)).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})

	return client
}
