package exflow

import "strings"

// Phase identifies which reviewer role currently owns a request
type Phase string

const (
	PhaseISOReview            Phase = "ISO_REVIEW"
	PhaseDepartmentHeadReview Phase = "DEPARTMENT_HEAD_REVIEW"
	PhaseCISOReview           Phase = "CISO_REVIEW"
	PhaseCompleted            Phase = "COMPLETED"
)

// Phases lists the phases in review order
var Phases = []Phase{PhaseISOReview, PhaseDepartmentHeadReview, PhaseCISOReview, PhaseCompleted}

// Status is the requester-facing summary of a request
type Status string

const (
	StatusPending      Status = "Pending"
	StatusApproved     Status = "Approved"
	StatusDeclined     Status = "Declined"
	StatusNeedMoreInfo Status = "NeedMoreInfo"
	// StatusVoided marks an approved exception invalidated by a rescan. It is
	// terminal like Declined but cannot be resubmitted.
	StatusVoided Status = "Voided"
)

// Role is a reviewer role in the approval sequence
type Role string

const (
	RoleISO            Role = "ISO"
	RoleDepartmentHead Role = "DepartmentHead"
	RoleCISO           Role = "CISO"
)

// Roles lists reviewer roles in review order
var Roles = []Role{RoleISO, RoleDepartmentHead, RoleCISO}

// ParseRole resolves a role name case-insensitively, accepting common aliases
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)) {
	case "iso":
		return RoleISO, true
	case "departmenthead", "depthead", "dept":
		return RoleDepartmentHead, true
	case "ciso":
		return RoleCISO, true
	default:
		return "", false
	}
}

// Phase returns the phase in which the role acts
func (r Role) Phase() Phase {
	switch r {
	case RoleISO:
		return PhaseISOReview
	case RoleDepartmentHead:
		return PhaseDepartmentHeadReview
	case RoleCISO:
		return PhaseCISOReview
	default:
		return ""
	}
}

// Outcome is a reviewer's decision
type Outcome string

const (
	OutcomeUnset        Outcome = ""
	OutcomeApproved     Outcome = "Approved"
	OutcomeDeclined     Outcome = "Declined"
	OutcomeNeedMoreInfo Outcome = "NeedMoreInfo"
)

// ParseOutcome resolves an outcome name case-insensitively
func ParseOutcome(s string) (Outcome, bool) {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)) {
	case "approved", "approve":
		return OutcomeApproved, true
	case "declined", "decline", "rejected", "reject":
		return OutcomeDeclined, true
	case "needmoreinfo", "moreinfo", "needinfo":
		return OutcomeNeedMoreInfo, true
	default:
		return OutcomeUnset, false
	}
}

// IsSet reports whether a decision has been recorded
func (o Outcome) IsSet() bool {
	return o != OutcomeUnset
}

// Blocks reports whether the outcome stops the request from progressing
func (o Outcome) Blocks() bool {
	return o == OutcomeDeclined || o == OutcomeNeedMoreInfo
}

// DerivePhase computes the current phase from the three reviewer outcomes.
// It is a pure function of its arguments.
func DerivePhase(iso, deptHead, ciso Outcome) Phase {
	switch {
	case ciso.IsSet():
		if ciso == OutcomeApproved {
			return PhaseCompleted
		}
		return PhaseCISOReview
	case deptHead == OutcomeApproved:
		return PhaseCISOReview
	case iso == OutcomeApproved:
		return PhaseDepartmentHeadReview
	case deptHead.IsSet():
		return PhaseDepartmentHeadReview
	default:
		return PhaseISOReview
	}
}

// DeriveStatus computes the display status from the three reviewer outcomes.
// Intermediate approvals surface as Pending; only a CISO approval is Approved.
func DeriveStatus(iso, deptHead, ciso Outcome) Status {
	outcomes := []Outcome{iso, deptHead, ciso}
	for _, o := range outcomes {
		if o == OutcomeDeclined {
			return StatusDeclined
		}
	}
	for _, o := range outcomes {
		if o == OutcomeNeedMoreInfo {
			return StatusNeedMoreInfo
		}
	}
	if DerivePhase(iso, deptHead, ciso) == PhaseCompleted {
		return StatusApproved
	}
	return StatusPending
}

// BlockingRole returns the role whose decision holds the request at Declined or
// NeedMoreInfo, preferring the latest role in review order.
func BlockingRole(iso, deptHead, ciso Outcome) (Role, bool) {
	outcomes := map[Role]Outcome{RoleISO: iso, RoleDepartmentHead: deptHead, RoleCISO: ciso}
	for i := len(Roles) - 1; i >= 0; i-- {
		if outcomes[Roles[i]].Blocks() {
			return Roles[i], true
		}
	}
	return "", false
}
