package exflow

import (
	"fmt"
	"strings"
	"time"
)

// DefaultGracePeriod is how long a voided exception's finding may stay
// unremediated before it counts as a compliance violation
const DefaultGracePeriod = 30 * 24 * time.Hour

// UpdateFields are the requester edits accepted on resubmission. Nil fields
// are left unchanged.
type UpdateFields struct {
	Justification      *string             `json:"justification,omitempty"`
	Mitigation         *string             `json:"mitigation,omitempty"`
	AdditionalInfo     *string             `json:"additionalInfo,omitempty"`
	DataClassification *DataClassification `json:"dataClassification,omitempty"`
	ExpirationDate     *time.Time          `json:"expirationDate,omitempty"`
}

// IsEmpty reports whether no field is set
func (u *UpdateFields) IsEmpty() bool {
	return u == nil || (u.Justification == nil && u.Mitigation == nil && u.AdditionalInfo == nil &&
		u.DataClassification == nil && u.ExpirationDate == nil)
}

// VoidInput is the payload of a void event
type VoidInput struct {
	Reason      string
	Escalations []Escalation
	GracePeriod time.Duration
}

// Guard rejection reasons
const (
	ReasonRoleMismatch    = "reviewer role does not own the current approval phase"
	ReasonNotPending      = "request is not pending review; it must be resubmitted first"
	ReasonNotResubmitable = "only declined or need-more-info requests can be resubmitted"
	ReasonVoided          = "voided exceptions cannot be resubmitted; a new request is required"
	ReasonNotApproved     = "only approved exceptions can be voided"
)

// ApprovalMachine returns the ISO -> department head -> CISO approval workflow
func ApprovalMachine() *Machine {
	mb := NewMachine()
	reviewPhases := []struct {
		phase, next Phase
	}{
		{PhaseISOReview, PhaseDepartmentHeadReview},
		{PhaseDepartmentHeadReview, PhaseCISOReview},
		{PhaseCISOReview, PhaseCompleted},
	}

	for i, rp := range reviewPhases {
		sb := mb.State(rp.phase)
		if i == 0 {
			sb = sb.Initial()
		}
		sb.To(rp.next).On(EventApprove).
			When("role owns phase", roleOwnsPhase).Otherwise(ReasonRoleMismatch).
			When("request is pending", isPending).Otherwise(ReasonNotPending).
			Do("record decision", recordDecision).
			ToSelf().On(EventDecline).
			When("role owns phase", roleOwnsPhase).Otherwise(ReasonRoleMismatch).
			When("request is pending", isPending).Otherwise(ReasonNotPending).
			Do("record decision", recordDecision).
			ToSelf().On(EventNeedMoreInfo).
			When("role owns phase", roleOwnsPhase).Otherwise(ReasonRoleMismatch).
			When("request is pending", isPending).Otherwise(ReasonNotPending).
			Do("record decision", recordDecision).
			ToSelf().On(EventResubmit).
			When("request is blocked", isBlocked).Otherwise(ReasonNotResubmitable).
			Do("clear blocking decision", clearBlockingDecision)
	}

	return mb.State(PhaseCompleted).Final().
		ToSelf().On(EventVoid).
		When("exception is approved", isApproved).Otherwise(ReasonNotApproved).
		Do("mark void", markVoid).
		ToSelf().On(EventResubmit).
		When("request is not voided", isNotVoided).Otherwise(ReasonVoided).
		When("request is blocked", isBlocked).Otherwise(ReasonNotResubmitable).
		Build()
}

func roleOwnsPhase(ctx Context) bool {
	return ctx.Event().Role.Phase() == ctx.Request().Phase
}

func isPending(ctx Context) bool {
	return ctx.Request().Status == StatusPending
}

func isBlocked(ctx Context) bool {
	s := ctx.Request().Status
	return s == StatusDeclined || s == StatusNeedMoreInfo
}

func isApproved(ctx Context) bool {
	return ctx.Request().Status == StatusApproved
}

func isNotVoided(ctx Context) bool {
	return ctx.Request().Void == nil
}

func recordDecision(ctx Context) error {
	req, ev := ctx.Request(), ctx.Event()
	outcome := ev.Outcome()

	var v validationCollector
	if strings.TrimSpace(ev.Actor) == "" {
		v.add("reviewedBy", "reviewedBy required")
	}
	if outcome.Blocks() && strings.TrimSpace(ev.Comment) == "" {
		v.add("comments", fmt.Sprintf("a comment is required when the outcome is %s", outcome))
	}
	if err := v.result(); err != nil {
		return err
	}

	now := ctx.Now()
	d := req.Decision(ev.Role)
	*d = ReviewDecision{
		Role:       ev.Role,
		Outcome:    outcome,
		ReviewedBy: strings.TrimSpace(ev.Actor),
		Comments:   strings.TrimSpace(ev.Comment),
		ReviewDate: &now,
	}
	req.UpdatedAt = now
	appendAudit(req, AuditEntry{
		At:      now,
		Event:   ev.Name,
		Actor:   d.ReviewedBy,
		Role:    ev.Role,
		Outcome: outcome,
		Comment: d.Comments,
	})
	return nil
}

func clearBlockingDecision(ctx Context) error {
	req, ev := ctx.Request(), ctx.Event()
	role, ok := BlockingRole(req.Outcomes())
	if !ok {
		return fmt.Errorf("no blocking decision on %s", req.RequestID)
	}

	now := ctx.Now()
	if fields, ok := ev.Data.(*UpdateFields); ok && fields != nil {
		if err := applyUpdates(req, fields, now); err != nil {
			return err
		}
	}

	cleared := *req.Decision(role)
	*req.Decision(role) = ReviewDecision{Role: role}
	req.ResubmitComment = strings.TrimSpace(ev.Comment)
	req.UpdatedAt = now
	actor := ev.Actor
	if actor == "" {
		actor = req.RequestedBy
	}
	appendAudit(req, AuditEntry{
		At:      now,
		Event:   ev.Name,
		Actor:   actor,
		Role:    role,
		Outcome: cleared.Outcome,
		Comment: req.ResubmitComment,
	})
	return nil
}

func applyUpdates(req *ExceptionRequest, fields *UpdateFields, now time.Time) error {
	var v validationCollector
	var classification DataClassification
	if fields.DataClassification != nil {
		parsed, ok := ParseDataClassification(string(*fields.DataClassification))
		if !ok {
			v.add("dataClassification", fmt.Sprintf("unknown data classification %q", *fields.DataClassification))
		}
		classification = parsed
	}
	if fields.ExpirationDate != nil && (fields.ExpirationDate.IsZero() || BeforeDay(*fields.ExpirationDate, now)) {
		v.add("expirationDate", "expiration date invalid or in the past")
	}
	if err := v.result(); err != nil {
		return err
	}

	if fields.Justification != nil && strings.TrimSpace(*fields.Justification) != "" {
		req.Justification = *fields.Justification
	}
	if fields.Mitigation != nil && strings.TrimSpace(*fields.Mitigation) != "" {
		req.Mitigation = *fields.Mitigation
	}
	if fields.AdditionalInfo != nil {
		req.AdditionalInfo = strings.TrimSpace(*fields.AdditionalInfo)
	}
	if fields.DataClassification != nil {
		req.DataClassification = classification
	}
	if fields.ExpirationDate != nil {
		req.ExpirationDate = *fields.ExpirationDate
	}
	return nil
}

func markVoid(ctx Context) error {
	req, ev := ctx.Request(), ctx.Event()
	input, ok := ev.Data.(*VoidInput)
	if !ok || input == nil {
		return fmt.Errorf("void event carries no escalation data")
	}
	grace := input.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	now := ctx.Now()
	req.Void = &VoidMarker{
		At:            now,
		Reason:        input.Reason,
		GraceDeadline: now.Add(grace),
		Escalations:   append([]Escalation(nil), input.Escalations...),
	}
	req.UpdatedAt = now
	appendAudit(req, AuditEntry{
		At:      now,
		Event:   ev.Name,
		Actor:   ev.Actor,
		Comment: input.Reason,
	})
	return nil
}

// appendAudit stamps the entry with the post-mutation phase and status
func appendAudit(req *ExceptionRequest, entry AuditEntry) {
	req.Refresh()
	entry.Phase = req.Phase
	entry.Status = req.Status
	req.Audit = append(req.Audit, entry)
}
