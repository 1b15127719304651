package exflow

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrors_ErrorCode(t *testing.T) {
	testCases := []ErrorCode{
		ErrCodeNone,
		ErrCodeValidation,
		ErrCodeInvalidTransition,
		ErrCodeNotFound,
		ErrCodeConcurrencyConflict,
		ErrCodeInvalidConfiguration,
		ErrCodeActionFailed,
	}

	for i, code := range testCases {
		if int(code) != i {
			t.Errorf("Expected error code %d to have value %d", i, int(code))
		}
		if code.String() == "" {
			t.Errorf("Expected error code %d to have a name", i)
		}
	}
}

func TestValidationError_Aggregates(t *testing.T) {
	err := NewValidationError("serverName", "serverName required")
	err.Add("requester.email", "requester email is not a valid address")

	if !err.HasField("serverName") || !err.HasField("requester.email") {
		t.Errorf("Expected both fields to be recorded, got %v", err.Fields)
	}

	msg := err.Error()
	if !strings.Contains(msg, "serverName required") || !strings.Contains(msg, "not a valid address") {
		t.Errorf("Expected every reason in message, got '%s'", msg)
	}
}

func TestValidationCollector_NilWhenEmpty(t *testing.T) {
	var c validationCollector
	if err := c.result(); err != nil {
		t.Errorf("Expected nil error from empty collector, got %v", err)
	}

	c.add("termsAccepted", "terms and conditions must be accepted")
	if err := c.result(); !IsValidationError(err) {
		t.Errorf("Expected ValidationError, got %T", err)
	}
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := NewInvalidTransitionError("EXR-1", PhaseISOReview, StatusPending, EventResubmit,
		"only declined or need-more-info requests can be resubmitted")

	msg := err.Error()
	for _, part := range []string{"EXR-1", "ISO_REVIEW", "resubmit", "only declined"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Expected '%s' in message '%s'", part, msg)
		}
	}
}

func TestActionError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewActionError("record_decision", PhaseCISOReview, cause)

	if !errors.Is(err, cause) {
		t.Error("Expected ActionError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "record_decision") {
		t.Errorf("Expected action name in message, got '%s'", err.Error())
	}
}

func TestErrorHelpers_SeeThroughWrapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"validation", NewValidationError("f", "r"), ErrCodeValidation},
		{"transition", NewInvalidTransitionError("x", PhaseISOReview, StatusPending, "approve", "r"), ErrCodeInvalidTransition},
		{"not found", NewRequestNotFoundError("x"), ErrCodeNotFound},
		{"conflict", NewConcurrencyConflictError("x", 1, 2), ErrCodeConcurrencyConflict},
		{"configuration", NewConfigurationError("machine", "r"), ErrCodeInvalidConfiguration},
		{"action", NewActionError("a", PhaseISOReview, nil), ErrCodeActionFailed},
		{"plain", errors.New("plain"), ErrCodeNone},
		{"nil", nil, ErrCodeNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var wrapped error
			if tc.err != nil {
				wrapped = fmt.Errorf("outer: %w", tc.err)
			}
			if got := GetErrorCode(wrapped); got != tc.code {
				t.Errorf("Expected code %v, got %v", tc.code, got)
			}
		})
	}
}

func TestNotFoundError_Kinds(t *testing.T) {
	if msg := NewUserNotFoundError("jdoe").Error(); !strings.Contains(msg, "user 'jdoe'") {
		t.Errorf("Unexpected message '%s'", msg)
	}
	if msg := NewRequestNotFoundError("EXR-9").Error(); !strings.Contains(msg, "EXR-9") {
		t.Errorf("Unexpected message '%s'", msg)
	}
}
