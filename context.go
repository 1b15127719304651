package exflow

import (
	"context"
	"time"
)

// Context gives guards and actions access to the request being mutated and
// the triggering event
type Context interface {
	context.Context

	Request() *ExceptionRequest
	Event() *Event
	EventName() string
	Now() time.Time
}

// TransitionContext implements the Context interface
type TransitionContext struct {
	context.Context
	request *ExceptionRequest
	event   *Event
}

// NewContext creates a transition context for one event firing
func NewContext(parent context.Context, request *ExceptionRequest, event *Event) *TransitionContext {
	if parent == nil {
		parent = context.Background()
	}
	return &TransitionContext{
		Context: parent,
		request: request,
		event:   event,
	}
}

// Request returns the request under mutation
func (ctx *TransitionContext) Request() *ExceptionRequest {
	return ctx.request
}

// Event returns the triggering event
func (ctx *TransitionContext) Event() *Event {
	return ctx.event
}

// EventName returns the name of the triggering event
func (ctx *TransitionContext) EventName() string {
	if ctx.event == nil {
		return ""
	}
	return ctx.event.Name
}

// Now returns the event timestamp, falling back to the wall clock
func (ctx *TransitionContext) Now() time.Time {
	if ctx.event != nil && !ctx.event.Timestamp.IsZero() {
		return ctx.event.Timestamp
	}
	return time.Now()
}
