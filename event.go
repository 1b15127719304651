package exflow

import (
	"time"
)

// Event names accepted by the approval machine
const (
	EventSubmit       = "submit"
	EventApprove      = "approve"
	EventDecline      = "decline"
	EventNeedMoreInfo = "need_more_info"
	EventResubmit     = "resubmit"
	EventVoid         = "void"
)

// EventForOutcome maps a review outcome to the event that records it
func EventForOutcome(o Outcome) (string, bool) {
	switch o {
	case OutcomeApproved:
		return EventApprove, true
	case OutcomeDeclined:
		return EventDecline, true
	case OutcomeNeedMoreInfo:
		return EventNeedMoreInfo, true
	default:
		return "", false
	}
}

// Event is a trigger for a transition of an exception request
type Event struct {
	Name      string
	Role      Role
	Actor     string
	Comment   string
	Timestamp time.Time
	// Data carries event specific input: *UpdateFields for resubmit,
	// *VoidInput for void
	Data any
}

// NewEvent creates an event stamped with the given time
func NewEvent(name string, at time.Time) *Event {
	return &Event{Name: name, Timestamp: at}
}

// NewReviewEvent creates the event for a reviewer decision
func NewReviewEvent(role Role, outcome Outcome, reviewedBy, comments string, at time.Time) *Event {
	name, _ := EventForOutcome(outcome)
	return &Event{
		Name:      name,
		Role:      role,
		Actor:     reviewedBy,
		Comment:   comments,
		Timestamp: at,
	}
}

// Outcome returns the review outcome an event records, if any
func (e *Event) Outcome() Outcome {
	switch e.Name {
	case EventApprove:
		return OutcomeApproved
	case EventDecline:
		return OutcomeDeclined
	case EventNeedMoreInfo:
		return OutcomeNeedMoreInfo
	default:
		return OutcomeUnset
	}
}

// EventResult represents the result of firing an event at a request
type EventResult struct {
	Processed      bool
	StateChanged   bool
	PreviousPhase  Phase
	CurrentPhase   Phase
	PreviousStatus Status
	CurrentStatus  Status
	// Request is the mutated copy; nil unless the event was processed
	Request         *ExceptionRequest
	Error           error
	RejectionReason string
}

// NewEventResult creates a new event result
func NewEventResult(processed, stateChanged bool, prevPhase, currentPhase Phase) *EventResult {
	return &EventResult{
		Processed:     processed,
		StateChanged:  stateChanged,
		PreviousPhase: prevPhase,
		CurrentPhase:  currentPhase,
	}
}

// WithError adds an error to the event result
func (r *EventResult) WithError(err error) *EventResult {
	r.Error = err
	return r
}

// WithRejection adds a rejection reason to the event result
func (r *EventResult) WithRejection(reason string) *EventResult {
	r.RejectionReason = reason
	r.Processed = false
	return r
}

// Success returns true if the event was processed successfully
func (r *EventResult) Success() bool {
	return r.Processed && r.Error == nil
}
