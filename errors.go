package exflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents specific error conditions in the approval workflow
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Input was missing or malformed
	ErrCodeValidation
	// Transition is not allowed from the current phase/status
	ErrCodeInvalidTransition
	// Request or directory entry was not found
	ErrCodeNotFound
	// Concurrent modification detected on save
	ErrCodeConcurrencyConflict
	// Machine configuration is invalid
	ErrCodeInvalidConfiguration
	// Action execution failed
	ErrCodeActionFailed
)

// String returns a stable identifier for the error code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeValidation:
		return "VALIDATION_ERROR"
	case ErrCodeInvalidTransition:
		return "INVALID_TRANSITION"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeConcurrencyConflict:
		return "CONCURRENCY_CONFLICT"
	case ErrCodeInvalidConfiguration:
		return "CONFIGURATION_ERROR"
	case ErrCodeActionFailed:
		return "ACTION_FAILED"
	default:
		return "NONE"
	}
}

// ValidationError is returned for malformed or missing input at creation or resubmission
type ValidationError struct {
	Fields  []string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 1 {
		return "validation error: " + e.Reasons[0]
	}
	return fmt.Sprintf("validation error: %s", strings.Join(e.Reasons, "; "))
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{
		Fields:  []string{field},
		Reasons: []string{reason},
	}
}

// Add records another field problem
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, field)
	e.Reasons = append(e.Reasons, reason)
}

// HasField reports whether the field was rejected
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// validationCollector gathers field problems and yields nil when there were none
type validationCollector struct {
	err *ValidationError
}

func (c *validationCollector) add(field, reason string) {
	if c.err == nil {
		c.err = NewValidationError(field, reason)
		return
	}
	c.err.Add(field, reason)
}

func (c *validationCollector) result() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

// InvalidTransitionError is returned when an event is not legal in the current phase/status
type InvalidTransitionError struct {
	RequestID string
	Phase     Phase
	Status    Status
	Event     string
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("invalid transition [%s/%s on %s]: %s", e.Phase, e.Status, e.Event, e.Reason)
	}
	return fmt.Sprintf("invalid transition for %s [%s/%s on %s]: %s", e.RequestID, e.Phase, e.Status, e.Event, e.Reason)
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(requestID string, phase Phase, status Status, event, reason string) *InvalidTransitionError {
	return &InvalidTransitionError{
		RequestID: requestID,
		Phase:     phase,
		Status:    status,
		Event:     event,
		Reason:    reason,
	}
}

// NotFoundError is returned for unknown request IDs or directory usernames
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Key)
}

// NewRequestNotFoundError creates a not found error for an exception request
func NewRequestNotFoundError(requestID string) *NotFoundError {
	return &NotFoundError{Kind: "exception request", Key: requestID}
}

// NewUserNotFoundError creates a not found error for a directory user
func NewUserNotFoundError(username string) *NotFoundError {
	return &NotFoundError{Kind: "user", Key: username}
}

// ConcurrencyConflictError is returned when a save observes a different version than the one read
type ConcurrencyConflictError struct {
	RequestID string
	Expected  int64
	Actual    int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s: expected version %d, found %d", e.RequestID, e.Expected, e.Actual)
}

// NewConcurrencyConflictError creates a new concurrency conflict error
func NewConcurrencyConflictError(requestID string, expected, actual int64) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{
		RequestID: requestID,
		Expected:  expected,
		Actual:    actual,
	}
}

// ConfigurationError represents machine configuration issues
type ConfigurationError struct {
	Component string
	Issue     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, issue string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issue:     issue,
	}
}

// ActionError represents a transition action that failed or panicked
type ActionError struct {
	Action      string
	Phase       Phase
	OriginalErr error
}

func (e *ActionError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("action '%s' failed in phase '%s': %v", e.Action, e.Phase, e.OriginalErr)
	}
	return fmt.Sprintf("action '%s' failed in phase '%s'", e.Action, e.Phase)
}

func (e *ActionError) Unwrap() error {
	return e.OriginalErr
}

// NewActionError creates a new action execution error
func NewActionError(action string, phase Phase, err error) *ActionError {
	return &ActionError{
		Action:      action,
		Phase:       phase,
		OriginalErr: err,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidTransitionError checks if an error is an InvalidTransitionError
func IsInvalidTransitionError(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsNotFoundError checks if an error is a NotFoundError
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConcurrencyConflictError checks if an error is a ConcurrencyConflictError
func IsConcurrencyConflictError(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsActionError checks if an error is an ActionError
func IsActionError(err error) bool {
	var target *ActionError
	return errors.As(err, &target)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrCodeNone
	case IsValidationError(err):
		return ErrCodeValidation
	case IsInvalidTransitionError(err):
		return ErrCodeInvalidTransition
	case IsNotFoundError(err):
		return ErrCodeNotFound
	case IsConcurrencyConflictError(err):
		return ErrCodeConcurrencyConflict
	case IsConfigurationError(err):
		return ErrCodeInvalidConfiguration
	case IsActionError(err):
		return ErrCodeActionFailed
	default:
		return ErrCodeNone
	}
}
