// Package observers provides observers for monitoring exception request workflows
package observers

import (
	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow"
)

// LoggingObserver logs workflow events as structured hclog entries
type LoggingObserver struct {
	logger hclog.Logger
}

var _ exflow.ExtendedObserver = (*LoggingObserver)(nil)

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger hclog.Logger) *LoggingObserver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LoggingObserver{logger: logger}
}

// OnTransition logs transitions
func (o *LoggingObserver) OnTransition(from, to exflow.Phase, event *exflow.Event, request *exflow.ExceptionRequest) {
	args := []interface{}{
		"requestID", request.RequestID,
		"from", from,
		"to", to,
		"event", event.Name,
		"status", request.Status,
	}
	if event.Role != "" {
		args = append(args, "role", event.Role, "actor", event.Actor)
	}
	if from == to {
		o.logger.Debug("transition", args...)
		return
	}
	o.logger.Info("transition", args...)
}

// OnStatusChange logs status changes
func (o *LoggingObserver) OnStatusChange(from, to exflow.Status, request *exflow.ExceptionRequest) {
	o.logger.Info("status changed",
		"requestID", request.RequestID,
		"from", from,
		"to", to,
		"phase", request.Phase)
}

// OnSubmitted logs new requests
func (o *LoggingObserver) OnSubmitted(request *exflow.ExceptionRequest) {
	o.logger.Info("exception request submitted",
		"requestID", request.RequestID,
		"type", request.Type,
		"server", request.ServerName(),
		"requestedBy", request.RequestedBy)
}

// OnRejected logs refused events
func (o *LoggingObserver) OnRejected(requestID string, event *exflow.Event, reason string) {
	o.logger.Warn("event rejected",
		"requestID", requestID,
		"event", event.Name,
		"role", event.Role,
		"reason", reason)
}

// OnVoided logs voided exceptions
func (o *LoggingObserver) OnVoided(request *exflow.ExceptionRequest) {
	args := []interface{}{"requestID", request.RequestID, "server", request.ServerName()}
	if request.Void != nil {
		args = append(args, "reason", request.Void.Reason, "graceDeadline", request.Void.GraceDeadline)
	}
	o.logger.Warn("exception voided", args...)
}

// OnError logs errors
func (o *LoggingObserver) OnError(err error, requestID string) {
	o.logger.Error("workflow error", "requestID", requestID, "error", err)
}
