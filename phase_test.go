package exflow

import (
	"context"
	"testing"
)

var allOutcomes = []Outcome{OutcomeUnset, OutcomeApproved, OutcomeDeclined, OutcomeNeedMoreInfo}

func TestDerivePhase_Table(t *testing.T) {
	testCases := []struct {
		iso, dh, ciso Outcome
		expected      Phase
	}{
		{OutcomeUnset, OutcomeUnset, OutcomeUnset, PhaseISOReview},
		{OutcomeNeedMoreInfo, OutcomeUnset, OutcomeUnset, PhaseISOReview},
		{OutcomeDeclined, OutcomeUnset, OutcomeUnset, PhaseISOReview},
		{OutcomeApproved, OutcomeUnset, OutcomeUnset, PhaseDepartmentHeadReview},
		{OutcomeApproved, OutcomeDeclined, OutcomeUnset, PhaseDepartmentHeadReview},
		{OutcomeApproved, OutcomeNeedMoreInfo, OutcomeUnset, PhaseDepartmentHeadReview},
		{OutcomeApproved, OutcomeApproved, OutcomeUnset, PhaseCISOReview},
		{OutcomeApproved, OutcomeApproved, OutcomeDeclined, PhaseCISOReview},
		{OutcomeApproved, OutcomeApproved, OutcomeNeedMoreInfo, PhaseCISOReview},
		{OutcomeApproved, OutcomeApproved, OutcomeApproved, PhaseCompleted},
	}

	for _, tc := range testCases {
		got := DerivePhase(tc.iso, tc.dh, tc.ciso)
		if got != tc.expected {
			t.Errorf("DerivePhase(%q, %q, %q): expected %s, got %s", tc.iso, tc.dh, tc.ciso, tc.expected, got)
		}
	}
}

func TestDeriveStatus_Table(t *testing.T) {
	testCases := []struct {
		iso, dh, ciso Outcome
		expected      Status
	}{
		{OutcomeUnset, OutcomeUnset, OutcomeUnset, StatusPending},
		{OutcomeApproved, OutcomeUnset, OutcomeUnset, StatusPending},
		{OutcomeApproved, OutcomeApproved, OutcomeUnset, StatusPending},
		{OutcomeApproved, OutcomeApproved, OutcomeApproved, StatusApproved},
		{OutcomeNeedMoreInfo, OutcomeUnset, OutcomeUnset, StatusNeedMoreInfo},
		{OutcomeApproved, OutcomeDeclined, OutcomeUnset, StatusDeclined},
		{OutcomeApproved, OutcomeApproved, OutcomeNeedMoreInfo, StatusNeedMoreInfo},
		{OutcomeNeedMoreInfo, OutcomeDeclined, OutcomeUnset, StatusDeclined},
	}

	for _, tc := range testCases {
		got := DeriveStatus(tc.iso, tc.dh, tc.ciso)
		if got != tc.expected {
			t.Errorf("DeriveStatus(%q, %q, %q): expected %s, got %s", tc.iso, tc.dh, tc.ciso, tc.expected, got)
		}
	}
}

func TestDerivation_IsPure(t *testing.T) {
	for _, iso := range allOutcomes {
		for _, dh := range allOutcomes {
			for _, ciso := range allOutcomes {
				p1, s1 := DerivePhase(iso, dh, ciso), DeriveStatus(iso, dh, ciso)
				// interleave other evaluations to rule out hidden state
				DerivePhase(ciso, iso, dh)
				DeriveStatus(dh, ciso, iso)
				p2, s2 := DerivePhase(iso, dh, ciso), DeriveStatus(iso, dh, ciso)
				if p1 != p2 || s1 != s2 {
					t.Errorf("Derivation not stable for (%q, %q, %q)", iso, dh, ciso)
				}
			}
		}
	}
}

// reachable reports whether the machine can produce a decision triple: a later
// stage only holds an outcome once every earlier stage approved
func reachable(outcomes ...Outcome) bool {
	for i, o := range outcomes {
		if o == OutcomeApproved {
			continue
		}
		for _, later := range outcomes[i+1:] {
			if later != OutcomeUnset {
				return false
			}
		}
		return true
	}
	return true
}

func TestApprovedIffCompletedWithCISOApproval(t *testing.T) {
	checked := 0
	for _, iso := range allOutcomes {
		for _, dh := range allOutcomes {
			for _, ciso := range allOutcomes {
				if !reachable(iso, dh, ciso) {
					continue
				}
				checked++
				approved := DeriveStatus(iso, dh, ciso) == StatusApproved
				completed := DerivePhase(iso, dh, ciso) == PhaseCompleted && ciso == OutcomeApproved
				if approved != completed {
					t.Errorf("(%q, %q, %q): approved=%v completed=%v", iso, dh, ciso, approved, completed)
				}
			}
		}
	}
	if checked != 10 {
		t.Errorf("Expected 10 reachable decision triples, checked %d", checked)
	}
}

func TestBlockingOutcomeOutranksLaterApproval(t *testing.T) {
	for _, blocking := range []Outcome{OutcomeDeclined, OutcomeNeedMoreInfo} {
		if reachable(blocking, OutcomeUnset, OutcomeApproved) {
			t.Fatal("Expected a blocked triple to be unreachable")
		}
		if s := DeriveStatus(blocking, OutcomeUnset, OutcomeApproved); s == StatusApproved {
			t.Errorf("%s ahead of a CISO approval must not derive Approved", blocking)
		}
	}
}

func TestApprovedIffCompleted_ThroughEngine(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	req, err := te.Submit(ctx, CreateVulnerabilityInput())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	for _, role := range Roles {
		if req.Status == StatusApproved {
			t.Fatalf("Approved before %s reviewed", role)
		}
		req, err = te.Review(ctx, req.RequestID, role, OutcomeApproved, "reviewer", "")
		if err != nil {
			t.Fatalf("%s review failed: %v", role, err)
		}
	}
	AssertPhase(t, req, PhaseCompleted)
	AssertStatus(t, req, StatusApproved)
}

func TestBlockingRole(t *testing.T) {
	if role, ok := BlockingRole(OutcomeApproved, OutcomeDeclined, OutcomeUnset); !ok || role != RoleDepartmentHead {
		t.Errorf("Expected DepartmentHead to block, got %q %v", role, ok)
	}
	if role, ok := BlockingRole(OutcomeNeedMoreInfo, OutcomeUnset, OutcomeUnset); !ok || role != RoleISO {
		t.Errorf("Expected ISO to block, got %q %v", role, ok)
	}
	if role, ok := BlockingRole(OutcomeDeclined, OutcomeUnset, OutcomeNeedMoreInfo); !ok || role != RoleCISO {
		t.Errorf("Expected latest role CISO to block, got %q %v", role, ok)
	}
	if _, ok := BlockingRole(OutcomeApproved, OutcomeApproved, OutcomeUnset); ok {
		t.Error("Expected no blocking role")
	}
}

func TestParseRoleAndOutcome(t *testing.T) {
	roles := map[string]Role{"iso": RoleISO, "Dept_Head": RoleDepartmentHead, "department-head": RoleDepartmentHead, "CISO": RoleCISO}
	for in, expected := range roles {
		if got, ok := ParseRole(in); !ok || got != expected {
			t.Errorf("ParseRole(%q): expected %s, got %s", in, expected, got)
		}
	}
	if _, ok := ParseRole("auditor"); ok {
		t.Error("Expected unknown role to fail")
	}

	outcomes := map[string]Outcome{"approve": OutcomeApproved, "Declined": OutcomeDeclined, "need_more_info": OutcomeNeedMoreInfo}
	for in, expected := range outcomes {
		if got, ok := ParseOutcome(in); !ok || got != expected {
			t.Errorf("ParseOutcome(%q): expected %s, got %s", in, expected, got)
		}
	}
	if _, ok := ParseOutcome(""); ok {
		t.Error("Expected unset outcome to fail parsing")
	}
}

func TestRolePhase(t *testing.T) {
	for i, role := range Roles {
		if role.Phase() != Phases[i] {
			t.Errorf("Role %s: expected phase %s, got %s", role, Phases[i], role.Phase())
		}
	}
}
