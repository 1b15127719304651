package exflow

import "testing"

func TestTransition_Builders(t *testing.T) {
	tr := NewTransition(PhaseISOReview, PhaseDepartmentHeadReview, EventApprove).
		WithGuard("always", func(ctx Context) bool { return true }).
		WithAction("noop", func(ctx Context) error { return nil })

	if tr.SourcePhase != PhaseISOReview || tr.TargetPhase != PhaseDepartmentHeadReview || tr.EventName != EventApprove {
		t.Errorf("Unexpected transition %+v", tr)
	}
	if len(tr.Guards) != 1 || tr.Guards[0].Name != "always" {
		t.Errorf("Expected guard to be recorded, got %+v", tr.Guards)
	}
	if tr.ActionName != "noop" || tr.Action == nil {
		t.Error("Expected action to be recorded")
	}
	if tr.IsSelf() {
		t.Error("Expected non-self transition")
	}
	if !NewTransition(PhaseCompleted, PhaseCompleted, EventVoid).IsSelf() {
		t.Error("Expected self transition")
	}
}

func TestGuard_Rejection(t *testing.T) {
	if r := (Guard{Name: "request is pending"}).rejection(); r != "condition not met: request is pending" {
		t.Errorf("Unexpected default rejection %q", r)
	}
	if r := (Guard{Name: "x", Reason: "custom"}).rejection(); r != "custom" {
		t.Errorf("Unexpected rejection %q", r)
	}
}

func TestEvaluateGuards_FirstFailure(t *testing.T) {
	calls := 0
	tr := NewTransition(PhaseISOReview, PhaseISOReview, EventDecline).
		WithGuard("passes", func(ctx Context) bool { calls++; return true }).
		WithGuard("fails", func(ctx Context) bool { calls++; return false }).
		WithGuard("skipped", func(ctx Context) bool { calls++; return true })

	failed, err := evaluateGuards(tr, NewContext(nil, nil, nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if failed == nil || failed.Name != "fails" {
		t.Errorf("Expected 'fails' guard, got %+v", failed)
	}
	if calls != 2 {
		t.Errorf("Expected evaluation to stop at first failure, got %d calls", calls)
	}
}
