package observers

import (
	"fmt"
	"sync"

	"github.com/anggasct/exflow"
)

// ValidationObserver checks every committed transition against a machine
// definition and re-derives phase and status from the stored decisions
type ValidationObserver struct {
	exflow.BaseObserver

	allowedTransitions map[exflow.Phase]map[exflow.Phase]bool
	visitedPhases      map[exflow.Phase]bool
	violations         []string
	mutex              sync.RWMutex
}

// NewValidationObserver creates a validation observer. Transitions defined by
// machine are allowed; a nil machine allows every transition.
func NewValidationObserver(machine *exflow.Machine) *ValidationObserver {
	o := &ValidationObserver{
		allowedTransitions: make(map[exflow.Phase]map[exflow.Phase]bool),
		visitedPhases:      make(map[exflow.Phase]bool),
		violations:         make([]string, 0),
	}
	if machine != nil {
		for _, t := range machine.Transitions() {
			o.AddAllowedTransition(t.SourcePhase, t.TargetPhase)
		}
	}
	return o
}

// AddAllowedTransition adds an allowed transition
func (o *ValidationObserver) AddAllowedTransition(from, to exflow.Phase) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[exflow.Phase]bool)
	}

	o.allowedTransitions[from][to] = true
}

// OnSubmitted checks the initial state of a request
func (o *ValidationObserver) OnSubmitted(request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedPhases[request.Phase] = true
	if request.Phase != exflow.PhaseISOReview || request.Status != exflow.StatusPending {
		o.violations = append(o.violations, fmt.Sprintf(
			"request '%s' submitted in %s/%s", request.RequestID, request.Phase, request.Status))
	}
	o.checkDerived(request)
}

// OnTransition validates transitions
func (o *ValidationObserver) OnTransition(from, to exflow.Phase, event *exflow.Event, request *exflow.ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedPhases[to] = true
	if len(o.allowedTransitions) > 0 && !o.allowedTransitions[from][to] {
		o.violations = append(o.violations, fmt.Sprintf(
			"Invalid transition from '%s' to '%s' on event '%s'", from, to, event.Name))
	}
	if request.Phase != to {
		o.violations = append(o.violations, fmt.Sprintf(
			"request '%s' stored in %s after transition to %s", request.RequestID, request.Phase, to))
	}
	o.checkDerived(request)
}

// OnError records errors as violations
func (o *ValidationObserver) OnError(err error, requestID string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.violations = append(o.violations, fmt.Sprintf("Error occurred on '%s': %v", requestID, err))
}

// checkDerived verifies that phase and status agree with the recorded outcomes
func (o *ValidationObserver) checkDerived(request *exflow.ExceptionRequest) {
	iso, dept, ciso := request.Outcomes()
	if phase := exflow.DerivePhase(iso, dept, ciso); phase != request.Phase {
		o.violations = append(o.violations, fmt.Sprintf(
			"request '%s' phase %s does not match derived %s", request.RequestID, request.Phase, phase))
	}

	status := exflow.DeriveStatus(iso, dept, ciso)
	if request.Void != nil {
		status = exflow.StatusVoided
	}
	if status != request.Status {
		o.violations = append(o.violations, fmt.Sprintf(
			"request '%s' status %s does not match derived %s", request.RequestID, request.Status, status))
	}
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// GetUnvisitedPhases returns phases from expected that no request reached
func (o *ValidationObserver) GetUnvisitedPhases(expected ...exflow.Phase) []exflow.Phase {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []exflow.Phase
	for _, phase := range expected {
		if !o.visitedPhases[phase] {
			unvisited = append(unvisited, phase)
		}
	}

	return unvisited
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedPhases = make(map[exflow.Phase]bool)
	o.violations = make([]string, 0)
}
