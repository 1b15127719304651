package exflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExceptionType distinguishes policy deviations from vulnerability exceptions
type ExceptionType string

const (
	ExceptionStandard      ExceptionType = "Standard"
	ExceptionVulnerability ExceptionType = "Vulnerability"
)

// DataClassification is the highest classification of data on the subject systems
type DataClassification string

const (
	ClassificationConfidential DataClassification = "Confidential"
	ClassificationControlled   DataClassification = "Controlled"
	ClassificationPublished    DataClassification = "Published"
)

// ParseDataClassification resolves a classification case-insensitively
func ParseDataClassification(s string) (DataClassification, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confidential":
		return ClassificationConfidential, true
	case "controlled":
		return ClassificationControlled, true
	case "published":
		return ClassificationPublished, true
	default:
		return "", false
	}
}

// Contact is a snapshot of a person's details captured at submission time
type Contact struct {
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"department"`
	JobTitle   string `json:"jobTitle"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// FullName joins first and last name
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Subject is what an exception covers. It is either a StandardSubject or a
// VulnerabilitySubject.
type Subject interface {
	ExceptionType() ExceptionType
	PrimaryServer() string
	clone() Subject
}

// StandardSubject is a policy deviation spanning one or more servers
type StandardSubject struct {
	Servers      []string `json:"servers"`
	StandardInfo string   `json:"standardInfo"`
}

// ExceptionType implements Subject
func (s *StandardSubject) ExceptionType() ExceptionType { return ExceptionStandard }

// PrimaryServer returns the first server
func (s *StandardSubject) PrimaryServer() string {
	if len(s.Servers) == 0 {
		return ""
	}
	return s.Servers[0]
}

func (s *StandardSubject) clone() Subject {
	c := *s
	c.Servers = append([]string(nil), s.Servers...)
	return &c
}

// VulnerabilitySubject is a set of findings on a single server
type VulnerabilitySubject struct {
	ServerName string    `json:"serverName"`
	Findings   []Finding `json:"findings"`
}

// ExceptionType implements Subject
func (s *VulnerabilitySubject) ExceptionType() ExceptionType { return ExceptionVulnerability }

// PrimaryServer returns the scanned server
func (s *VulnerabilitySubject) PrimaryServer() string { return s.ServerName }

func (s *VulnerabilitySubject) clone() Subject {
	c := *s
	c.Findings = append([]Finding(nil), s.Findings...)
	return &c
}

// ReviewDecision is one reviewer role's decision in the current review cycle
type ReviewDecision struct {
	Role       Role       `json:"role"`
	Outcome    Outcome    `json:"outcome"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	Comments   string     `json:"comments,omitempty"`
	ReviewDate *time.Time `json:"reviewDate,omitempty"`
}

// AuditEntry records one mutation of a request
type AuditEntry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Actor   string    `json:"actor,omitempty"`
	Role    Role      `json:"role,omitempty"`
	Outcome Outcome   `json:"outcome,omitempty"`
	Comment string    `json:"comment,omitempty"`
	Phase   Phase     `json:"phase"`
	Status  Status    `json:"status"`
}

// Escalation describes a finding that invalidates an approved exception
type Escalation struct {
	Finding          Finding  `json:"finding"`
	PreviousSeverity Severity `json:"previousSeverity"`
	New              bool     `json:"new"`
}

// VoidMarker is set when a rescan invalidates an approved exception
type VoidMarker struct {
	At            time.Time    `json:"at"`
	Reason        string       `json:"reason"`
	GraceDeadline time.Time    `json:"graceDeadline"`
	Escalations   []Escalation `json:"escalations"`
}

// ExceptionRequest is the aggregate root of the approval workflow. Phase and
// Status are cached views recomputed by Refresh on every mutation.
type ExceptionRequest struct {
	ID                 string             `json:"id"`
	RequestID          string             `json:"requestId"`
	Type               ExceptionType      `json:"exceptionType"`
	DataClassification DataClassification `json:"dataClassification,omitempty"`
	Subject            Subject            `json:"-"`

	RequestedBy string  `json:"requestedBy,omitempty"`
	Requester   Contact `json:"requester"`
	Approver    Contact `json:"approver"`

	Justification  string `json:"justification"`
	Mitigation     string `json:"mitigation"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
	TermsAccepted  bool   `json:"termsAccepted"`

	RequestedDate  time.Time `json:"requestedDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	ISOReview      ReviewDecision `json:"isoReview"`
	DeptHeadReview ReviewDecision `json:"deptHeadReview"`
	CISOReview     ReviewDecision `json:"cisoReview"`

	Phase  Phase  `json:"approvalPhase"`
	Status Status `json:"status"`

	ResubmitComment string       `json:"resubmitComment,omitempty"`
	Audit           []AuditEntry `json:"audit"`
	Void            *VoidMarker  `json:"void,omitempty"`

	Version int64 `json:"version"`
}

// ServerName returns the primary server of the request
func (r *ExceptionRequest) ServerName() string {
	if r.Subject == nil {
		return ""
	}
	return r.Subject.PrimaryServer()
}

// Findings returns the covered findings; empty for standard exceptions
func (r *ExceptionRequest) Findings() []Finding {
	if v, ok := r.Subject.(*VulnerabilitySubject); ok {
		return v.Findings
	}
	return nil
}

// Servers returns every server the request covers
func (r *ExceptionRequest) Servers() []string {
	switch s := r.Subject.(type) {
	case *StandardSubject:
		return s.Servers
	case *VulnerabilitySubject:
		return []string{s.ServerName}
	default:
		return nil
	}
}

// ApproverLabel names the approver role the way the request forms do
func (r *ExceptionRequest) ApproverLabel() string {
	if r.Type == ExceptionStandard {
		return "Department Chair, Dean, or Vice-President"
	}
	return "Department Head"
}

// Decision returns the decision slot for a role, or nil for an unknown role
func (r *ExceptionRequest) Decision(role Role) *ReviewDecision {
	switch role {
	case RoleISO:
		return &r.ISOReview
	case RoleDepartmentHead:
		return &r.DeptHeadReview
	case RoleCISO:
		return &r.CISOReview
	default:
		return nil
	}
}

// Outcomes returns the three reviewer outcomes in review order
func (r *ExceptionRequest) Outcomes() (iso, deptHead, ciso Outcome) {
	return r.ISOReview.Outcome, r.DeptHeadReview.Outcome, r.CISOReview.Outcome
}

// Refresh recomputes the cached phase and status from the reviewer decisions
func (r *ExceptionRequest) Refresh() {
	iso, dh, ciso := r.Outcomes()
	r.Phase = DerivePhase(iso, dh, ciso)
	r.Status = DeriveStatus(iso, dh, ciso)
	if r.Void != nil {
		r.Status = StatusVoided
	}
}

// Expiry classifies the exception window relative to now
func (r *ExceptionRequest) Expiry(now time.Time) ExpiryState {
	return ClassifyExpiry(r.ExpirationDate, now)
}

// Clone returns a deep copy
func (r *ExceptionRequest) Clone() *ExceptionRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.Subject != nil {
		c.Subject = r.Subject.clone()
	}
	c.ISOReview = cloneDecision(r.ISOReview)
	c.DeptHeadReview = cloneDecision(r.DeptHeadReview)
	c.CISOReview = cloneDecision(r.CISOReview)
	c.Audit = append([]AuditEntry(nil), r.Audit...)
	if r.Void != nil {
		v := *r.Void
		v.Escalations = append([]Escalation(nil), r.Void.Escalations...)
		c.Void = &v
	}
	return &c
}

func cloneDecision(d ReviewDecision) ReviewDecision {
	if d.ReviewDate != nil {
		t := *d.ReviewDate
		d.ReviewDate = &t
	}
	return d
}

type requestAlias ExceptionRequest

type requestJSON struct {
	*requestAlias
	Subject json.RawMessage `json:"subject"`
}

// MarshalJSON encodes the subject variant alongside the exception type tag
func (r *ExceptionRequest) MarshalJSON() ([]byte, error) {
	subject := json.RawMessage("null")
	if r.Subject != nil {
		data, err := json.Marshal(r.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal subject: %w", err)
		}
		subject = data
	}
	return json.Marshal(requestJSON{requestAlias: (*requestAlias)(r), Subject: subject})
}

// UnmarshalJSON decodes the subject variant selected by the exception type tag
func (r *ExceptionRequest) UnmarshalJSON(data []byte) error {
	aux := requestJSON{requestAlias: (*requestAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Subject) == 0 || string(aux.Subject) == "null" {
		r.Subject = nil
		return nil
	}

	switch r.Type {
	case ExceptionStandard:
		var s StandardSubject
		if err := json.Unmarshal(aux.Subject, &s); err != nil {
			return fmt.Errorf("failed to unmarshal standard subject: %w", err)
		}
		r.Subject = &s
	case ExceptionVulnerability:
		var s VulnerabilitySubject
		if err := json.Unmarshal(aux.Subject, &s); err != nil {
			return fmt.Errorf("failed to unmarshal vulnerability subject: %w", err)
		}
		r.Subject = &s
	default:
		return fmt.Errorf("unknown exception type %q", r.Type)
	}
	return nil
}

// IDGenerator assigns identities to new requests
type IDGenerator interface {
	NewID() string
	NewRequestID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

func (uuidGenerator) NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "EXR-" + strings.ToUpper(id.String())
}

// DefaultIDGenerator produces a UUIDv4 internal key and a time-ordered EXR- request ID
var DefaultIDGenerator IDGenerator = uuidGenerator{}

// CreateInput is the requester-supplied content of a new exception request
type CreateInput struct {
	Type         ExceptionType `json:"exceptionType"`
	ServerName   string        `json:"serverName"`
	Servers      []string      `json:"serverNames,omitempty"`
	StandardInfo string        `json:"standardInfo,omitempty"`
	Findings     []any         `json:"vulnerabilities,omitempty"`

	RequestedBy      string  `json:"requestedBy,omitempty"`
	Requester        Contact `json:"requester"`
	ApproverUsername string  `json:"approverUsername"`
	Approver         Contact `json:"approver"`

	Justification       string           `json:"justification"`
	Mitigation          string           `json:"mitigation"`
	JustificationBlocks []NarrativeBlock `json:"justificationBlocks,omitempty"`
	MitigationBlocks    []NarrativeBlock `json:"mitigationBlocks,omitempty"`
	AdditionalInfo      string           `json:"additionalInfo,omitempty"`

	DataClassification    DataClassification `json:"dataClassification"`
	ExceptionDurationType DurationSelector   `json:"exceptionDurationType"`
	CustomExpirationDate  *time.Time         `json:"customExpirationDate,omitempty"`
	TermsAccepted         bool               `json:"termsAccepted"`
}

const (
	defaultJustification = "No justification provided"
	defaultMitigation    = "No mitigation provided"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s has a basic email shape
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// NewExceptionRequest validates the input and builds a request in ISO review.
// Every problem is reported in a single ValidationError.
func NewExceptionRequest(in CreateInput, now time.Time, ids IDGenerator) (*ExceptionRequest, error) {
	if ids == nil {
		ids = DefaultIDGenerator
	}
	var v validationCollector

	exType := resolveExceptionType(in, &v)
	subject := buildSubject(exType, in, &v)

	requireField(&v, "requester.firstName", in.Requester.FirstName, "requester first name required")
	requireField(&v, "requester.lastName", in.Requester.LastName, "requester last name required")
	requireField(&v, "requester.jobTitle", in.Requester.JobTitle, "requester job title required")
	if strings.TrimSpace(in.Requester.Email) == "" {
		v.add("requester.email", "requester email required")
	} else if !ValidEmail(in.Requester.Email) {
		v.add("requester.email", "requester email is not a valid address")
	}

	approver := in.Approver
	if approver.Username == "" {
		approver.Username = strings.TrimSpace(in.ApproverUsername)
	}
	requireField(&v, "approverUsername", approver.Username, "approver username required")
	if approver.Email != "" && !ValidEmail(approver.Email) {
		v.add("approver.email", "approver email is not a valid address")
	}

	classification := in.DataClassification
	if classification != "" {
		parsed, ok := ParseDataClassification(string(classification))
		if !ok {
			v.add("dataClassification", fmt.Sprintf("unknown data classification %q", classification))
		}
		classification = parsed
	}

	if !in.TermsAccepted {
		v.add("termsAccepted", "terms and conditions must be accepted")
	}

	expiration, err := ResolveExpiration(in.ExceptionDurationType, in.CustomExpirationDate, now)
	if err != nil {
		v.add("customExpirationDate", "expiration date invalid or in the past")
	}

	if err := v.result(); err != nil {
		return nil, err
	}

	justification := in.Justification
	if len(in.JustificationBlocks) > 0 {
		justification = EncodeNarrative(exType, in.JustificationBlocks)
	}
	mitigation := in.Mitigation
	if len(in.MitigationBlocks) > 0 {
		mitigation = EncodeNarrative(exType, in.MitigationBlocks)
	}

	req := &ExceptionRequest{
		ID:                 ids.NewID(),
		RequestID:          ids.NewRequestID(),
		Type:               exType,
		DataClassification: classification,
		Subject:            subject,
		RequestedBy:        strings.TrimSpace(in.RequestedBy),
		Requester:          trimContact(in.Requester),
		Approver:           trimContact(approver),
		Justification:      orDefault(justification, defaultJustification),
		Mitigation:         orDefault(mitigation, defaultMitigation),
		AdditionalInfo:     strings.TrimSpace(in.AdditionalInfo),
		TermsAccepted:      true,
		RequestedDate:      now,
		ExpirationDate:     expiration,
		CreatedAt:          now,
		UpdatedAt:          now,
		ISOReview:          ReviewDecision{Role: RoleISO},
		DeptHeadReview:     ReviewDecision{Role: RoleDepartmentHead},
		CISOReview:         ReviewDecision{Role: RoleCISO},
	}
	req.Refresh()
	req.Audit = []AuditEntry{{
		At:     now,
		Event:  EventSubmit,
		Actor:  req.RequestedBy,
		Phase:  req.Phase,
		Status: req.Status,
	}}
	return req, nil
}

// resolveExceptionType infers a missing type from the subject fields. A type
// that is set but names neither variant is rejected.
func resolveExceptionType(in CreateInput, v *validationCollector) ExceptionType {
	switch strings.ToLower(strings.TrimSpace(string(in.Type))) {
	case "standard":
		return ExceptionStandard
	case "vulnerability":
		return ExceptionVulnerability
	case "":
		if len(in.Findings) == 0 && len(in.Servers) > 0 {
			return ExceptionStandard
		}
		return ExceptionVulnerability
	default:
		v.add("exceptionType", "exception type must be Standard or Vulnerability")
		return ExceptionVulnerability
	}
}

func buildSubject(exType ExceptionType, in CreateInput, v *validationCollector) Subject {
	if exType == ExceptionStandard {
		var servers []string
		for _, s := range append([]string{in.ServerName}, in.Servers...) {
			if s = strings.TrimSpace(s); s != "" && !containsString(servers, s) {
				servers = append(servers, s)
			}
		}
		if len(servers) == 0 {
			v.add("serverName", "serverName required")
		}
		requireField(v, "standardInfo", in.StandardInfo, "standard and system information required")
		if len(in.Findings) > 0 {
			v.add("vulnerabilities", "standard exceptions cannot reference findings")
		}
		return &StandardSubject{Servers: servers, StandardInfo: strings.TrimSpace(in.StandardInfo)}
	}

	server := strings.TrimSpace(in.ServerName)
	if server == "" && len(in.Servers) > 0 {
		server = strings.TrimSpace(in.Servers[0])
	}
	if server == "" {
		v.add("serverName", "serverName required")
	}
	findings := FilterActionable(NormalizeFindings(in.Findings))
	if len(findings) == 0 {
		v.add("vulnerabilities", "at least one finding with severity above Info is required")
	}
	return &VulnerabilitySubject{ServerName: server, Findings: findings}
}

func requireField(v *validationCollector, field, value, reason string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, reason)
	}
}

func trimContact(c Contact) Contact {
	return Contact{
		Username:   strings.TrimSpace(c.Username),
		FirstName:  strings.TrimSpace(c.FirstName),
		LastName:   strings.TrimSpace(c.LastName),
		Department: strings.TrimSpace(c.Department),
		JobTitle:   strings.TrimSpace(c.JobTitle),
		Email:      strings.TrimSpace(c.Email),
		Phone:      strings.TrimSpace(c.Phone),
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
