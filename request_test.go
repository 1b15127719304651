package exflow

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewExceptionRequest_Vulnerability(t *testing.T) {
	in := CreateVulnerabilityInput()
	in.Findings = append(in.Findings,
		map[string]any{"plugin_name": "Host Fully Qualified Domain Name Resolution", "severity": 0},
		"Legacy text finding",
	)
	in.Findings = append(in.Findings, map[string]any{"id": "11", "severity": "critical"})

	req, err := NewExceptionRequest(in, referenceNow, &SequentialIDs{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	AssertPhase(t, req, PhaseISOReview)
	AssertStatus(t, req, StatusPending)
	AssertOutcomes(t, req, OutcomeUnset, OutcomeUnset, OutcomeUnset)

	if req.Type != ExceptionVulnerability || req.ServerName() != "web01.example.edu" {
		t.Errorf("Unexpected subject %s/%s", req.Type, req.ServerName())
	}
	findings := req.Findings()
	if len(findings) != 2 {
		t.Fatalf("Expected informational findings to be filtered, got %+v", findings)
	}
	if findings[1].Name != "Vulnerability ID: 11" || findings[1].Severity != SeverityCritical {
		t.Errorf("Unexpected finding %+v", findings[1])
	}

	if req.RequestID != "EXR-1" || req.ID != "id-1" {
		t.Errorf("Unexpected identifiers %s/%s", req.RequestID, req.ID)
	}
	if !req.CreatedAt.Equal(referenceNow) || !req.RequestedDate.Equal(referenceNow) {
		t.Error("Expected creation timestamps to be now")
	}
	if !req.ExpirationDate.Equal(referenceNow.AddDate(0, 6, 0)) {
		t.Errorf("Expected six month expiration, got %v", req.ExpirationDate)
	}
	if req.Approver.Username != "mhead" {
		t.Errorf("Expected approver username, got %q", req.Approver.Username)
	}
	if len(req.Audit) != 1 || req.Audit[0].Event != EventSubmit {
		t.Errorf("Expected submit audit entry, got %+v", req.Audit)
	}
	if req.ISOReview.Role != RoleISO || req.CISOReview.Role != RoleCISO {
		t.Error("Expected decision slots to carry their roles")
	}
}

func TestNewExceptionRequest_Standard(t *testing.T) {
	in := CreateStandardInput()
	in.Servers = []string{" ", "db01.example.edu", "db01.example.edu", "db02.example.edu"}
	in.JustificationBlocks = []NarrativeBlock{
		{Subject: "db01.example.edu", Text: "Vendor managed"},
		{Subject: "db02.example.edu", Text: "Vendor managed"},
	}
	in.Justification = ""
	in.Mitigation = "  "

	req, err := NewExceptionRequest(in, referenceNow, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if req.Type != ExceptionStandard {
		t.Fatalf("Expected standard request, got %s", req.Type)
	}
	if req.ServerName() != "db01.example.edu" {
		t.Errorf("Expected first non-blank server, got %q", req.ServerName())
	}
	if servers := req.Servers(); len(servers) != 2 {
		t.Errorf("Expected de-duplicated servers, got %v", servers)
	}
	if !strings.HasPrefix(req.Justification, "Server: db01.example.edu\n") {
		t.Errorf("Expected encoded narrative, got %q", req.Justification)
	}
	if req.Mitigation != defaultMitigation {
		t.Errorf("Expected default mitigation, got %q", req.Mitigation)
	}
	if !strings.HasPrefix(req.RequestID, "EXR-") || req.ID == "" {
		t.Errorf("Expected generated identifiers, got %q/%q", req.RequestID, req.ID)
	}
	if req.ApproverLabel() != "Department Chair, Dean, or Vice-President" {
		t.Errorf("Unexpected approver label %q", req.ApproverLabel())
	}
}

func TestNewExceptionRequest_InfersType(t *testing.T) {
	in := CreateStandardInput()
	in.Type = ""
	req, err := NewExceptionRequest(in, referenceNow, nil)
	if err != nil || req.Type != ExceptionStandard {
		t.Errorf("Expected standard inference, got %v %v", req, err)
	}

	in = CreateVulnerabilityInput()
	in.Type = ""
	req, err = NewExceptionRequest(in, referenceNow, nil)
	if err != nil || req.Type != ExceptionVulnerability {
		t.Errorf("Expected vulnerability inference, got %v %v", req, err)
	}

	in = CreateVulnerabilityInput()
	in.Type = "vulnerability"
	req, err = NewExceptionRequest(in, referenceNow, nil)
	if err != nil || req.Type != ExceptionVulnerability {
		t.Errorf("Expected vulnerability, got %v %v", req, err)
	}
}

func TestNewExceptionRequest_ValidationFailures(t *testing.T) {
	past := referenceNow.AddDate(0, 0, -1)

	testCases := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"missing server", func(in *CreateInput) { in.ServerName = " " }, "serverName"},
		{"only info findings", func(in *CreateInput) { in.Findings = []any{map[string]any{"name": "x", "severity": 0}} }, "vulnerabilities"},
		{"no findings", func(in *CreateInput) { in.Findings = nil }, "vulnerabilities"},
		{"missing first name", func(in *CreateInput) { in.Requester.FirstName = "" }, "requester.firstName"},
		{"missing last name", func(in *CreateInput) { in.Requester.LastName = "" }, "requester.lastName"},
		{"missing job title", func(in *CreateInput) { in.Requester.JobTitle = "" }, "requester.jobTitle"},
		{"missing email", func(in *CreateInput) { in.Requester.Email = "" }, "requester.email"},
		{"bad email", func(in *CreateInput) { in.Requester.Email = "jane at example" }, "requester.email"},
		{"missing approver", func(in *CreateInput) { in.ApproverUsername = "" }, "approverUsername"},
		{"bad approver email", func(in *CreateInput) { in.Approver.Email = "nope" }, "approver.email"},
		{"terms not accepted", func(in *CreateInput) { in.TermsAccepted = false }, "termsAccepted"},
		{"custom without date", func(in *CreateInput) { in.ExceptionDurationType = DurationCustom }, "customExpirationDate"},
		{"custom in past", func(in *CreateInput) {
			in.ExceptionDurationType = DurationCustom
			in.CustomExpirationDate = &past
		}, "customExpirationDate"},
		{"unknown classification", func(in *CreateInput) { in.DataClassification = "Secret" }, "dataClassification"},
		{"unknown exception type", func(in *CreateInput) { in.Type = "Bogus" }, "exceptionType"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := CreateVulnerabilityInput()
			tc.mutate(&in)
			_, err := NewExceptionRequest(in, referenceNow, nil)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if !verr.HasField(tc.field) {
				t.Errorf("Expected field %s to be rejected, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestNewExceptionRequest_StandardValidation(t *testing.T) {
	in := CreateStandardInput()
	in.StandardInfo = ""
	in.Findings = []any{"something"}
	in.Servers = nil

	_, err := NewExceptionRequest(in, referenceNow, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	for _, field := range []string{"standardInfo", "vulnerabilities", "serverName"} {
		if !verr.HasField(field) {
			t.Errorf("Expected %s to be rejected, got %v", field, verr.Fields)
		}
	}
}

func TestNewExceptionRequest_ReportsAllProblems(t *testing.T) {
	_, err := NewExceptionRequest(CreateInput{}, referenceNow, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(verr.Fields) < 6 {
		t.Errorf("Expected every missing field to be reported, got %v", verr.Fields)
	}
}

func TestExceptionRequest_RefreshVoidPrecedence(t *testing.T) {
	req := newTestRequest(t)
	req.ISOReview.Outcome = OutcomeApproved
	req.DeptHeadReview.Outcome = OutcomeApproved
	req.CISOReview.Outcome = OutcomeApproved
	req.Refresh()
	AssertPhase(t, req, PhaseCompleted)
	AssertStatus(t, req, StatusApproved)

	req.Void = &VoidMarker{At: referenceNow, Reason: "escalated"}
	req.Refresh()
	AssertPhase(t, req, PhaseCompleted)
	AssertStatus(t, req, StatusVoided)
}

func TestExceptionRequest_CloneIsDeep(t *testing.T) {
	req := newTestRequest(t)
	now := referenceNow
	req.ISOReview.ReviewDate = &now
	req.Void = &VoidMarker{Escalations: []Escalation{{Finding: Finding{Name: "a"}}}}

	c := req.Clone()
	c.Findings()[0].Name = "changed"
	c.Audit[0].Comment = "changed"
	*c.ISOReview.ReviewDate = referenceNow.Add(time.Hour)
	c.Void.Escalations[0].Finding.Name = "changed"

	if req.Findings()[0].Name == "changed" || req.Audit[0].Comment == "changed" {
		t.Error("Expected subject and audit to be copied")
	}
	if !req.ISOReview.ReviewDate.Equal(referenceNow) {
		t.Error("Expected review date to be copied")
	}
	if req.Void.Escalations[0].Finding.Name != "a" {
		t.Error("Expected void marker to be copied")
	}
	if (*ExceptionRequest)(nil).Clone() != nil {
		t.Error("Expected nil clone of nil")
	}
}

func TestExceptionRequest_JSONRoundTrip(t *testing.T) {
	for _, in := range []CreateInput{CreateVulnerabilityInput(), CreateStandardInput()} {
		req, err := NewExceptionRequest(in, referenceNow, &SequentialIDs{})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"subject":{`) || !strings.Contains(string(data), `"approvalPhase":"ISO_REVIEW"`) {
			t.Errorf("Unexpected encoding %s", data)
		}

		var decoded ExceptionRequest
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if decoded.Subject == nil || decoded.Subject.ExceptionType() != req.Type {
			t.Fatalf("Expected %s subject, got %#v", req.Type, decoded.Subject)
		}
		if decoded.ServerName() != req.ServerName() || len(decoded.Servers()) != len(req.Servers()) {
			t.Errorf("Subject mismatch after round trip")
		}
		if decoded.RequestID != req.RequestID || decoded.Phase != req.Phase || !decoded.ExpirationDate.Equal(req.ExpirationDate) {
			t.Errorf("Field mismatch after round trip: %+v", decoded)
		}
	}
}

func TestExceptionRequest_UnmarshalUnknownType(t *testing.T) {
	var r ExceptionRequest
	err := json.Unmarshal([]byte(`{"exceptionType":"Other","subject":{"x":1}}`), &r)
	if err == nil {
		t.Error("Expected error for unknown exception type")
	}
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", " jane.doe@example.edu "} {
		if !ValidEmail(ok) {
			t.Errorf("Expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "a@b", "a b@c.d", "@b.co"} {
		if ValidEmail(bad) {
			t.Errorf("Expected %q to be invalid", bad)
		}
	}
}
