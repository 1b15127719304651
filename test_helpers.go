package exflow

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

// TestObserver is a mock observer for testing that captures all observer events
type TestObserver struct {
	mutex         sync.RWMutex
	Transitions   []TransitionEvent
	StatusChanges []StatusEvent
	Submitted     []*ExceptionRequest
	Rejections    []RejectionEvent
	Voided        []*ExceptionRequest
	Errors        []ErrorEvent
}

type TransitionEvent struct {
	From    Phase
	To      Phase
	Event   *Event
	Request *ExceptionRequest
}

type StatusEvent struct {
	From    Status
	To      Status
	Request *ExceptionRequest
}

type RejectionEvent struct {
	RequestID string
	Event     *Event
	Reason    string
}

type ErrorEvent struct {
	Error     error
	RequestID string
}

// NewTestObserver creates a new test observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

func (o *TestObserver) OnTransition(from Phase, to Phase, event *Event, request *ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, TransitionEvent{From: from, To: to, Event: event, Request: request})
}

func (o *TestObserver) OnStatusChange(from Status, to Status, request *ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.StatusChanges = append(o.StatusChanges, StatusEvent{From: from, To: to, Request: request})
}

func (o *TestObserver) OnSubmitted(request *ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Submitted = append(o.Submitted, request)
}

func (o *TestObserver) OnRejected(requestID string, event *Event, reason string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Rejections = append(o.Rejections, RejectionEvent{RequestID: requestID, Event: event, Reason: reason})
}

func (o *TestObserver) OnVoided(request *ExceptionRequest) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Voided = append(o.Voided, request)
}

func (o *TestObserver) OnError(err error, requestID string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, ErrorEvent{Error: err, RequestID: requestID})
}

// Reset clears everything recorded so far
func (o *TestObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = nil
	o.StatusChanges = nil
	o.Submitted = nil
	o.Rejections = nil
	o.Voided = nil
	o.Errors = nil
}

func (o *TestObserver) TransitionCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Transitions)
}

func (o *TestObserver) RejectionCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Rejections)
}

func (o *TestObserver) LastTransition() *TransitionEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.Transitions) == 0 {
		return nil
	}
	return &o.Transitions[len(o.Transitions)-1]
}

func (o *TestObserver) LastStatusChange() *StatusEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.StatusChanges) == 0 {
		return nil
	}
	return &o.StatusChanges[len(o.StatusChanges)-1]
}

// Fixtures

// TestClock is a settable clock for engine tests
type TestClock struct {
	mutex sync.Mutex
	now   time.Time
}

// NewTestClock creates a clock frozen at now
func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now}
}

// Now returns the current frozen time
func (c *TestClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *TestClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDs generates predictable request identifiers
type SequentialIDs struct {
	mutex    sync.Mutex
	ids      int
	requests int
}

func (s *SequentialIDs) NewID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ids++
	return "id-" + strconv.Itoa(s.ids)
}

func (s *SequentialIDs) NewRequestID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.requests++
	return "EXR-" + strconv.Itoa(s.requests)
}

// CreateVulnerabilityInput returns a valid vulnerability request input with a
// single High finding
func CreateVulnerabilityInput() CreateInput {
	return CreateInput{
		Type:       ExceptionVulnerability,
		ServerName: "web01.example.edu",
		Findings: []any{
			map[string]any{"plugin_id": "57608", "plugin_name": "SMB Signing not required", "severity": 3},
		},
		RequestedBy: "jdoe",
		Requester: Contact{
			FirstName:  "Jane",
			LastName:   "Doe",
			Department: "Research Computing",
			JobTitle:   "System Administrator",
			Email:      "jane.doe@example.edu",
		},
		ApproverUsername:      "mhead",
		Justification:         "Legacy file server pending replacement",
		Mitigation:            "Restricted to management VLAN",
		DataClassification:    ClassificationControlled,
		ExceptionDurationType: DurationSixMonths,
		TermsAccepted:         true,
	}
}

// CreateStandardInput returns a valid standard exception input over two servers
func CreateStandardInput() CreateInput {
	in := CreateVulnerabilityInput()
	in.Type = ExceptionStandard
	in.ServerName = ""
	in.Servers = []string{"db01.example.edu", "db02.example.edu"}
	in.Findings = nil
	in.StandardInfo = "Password rotation standard, section 4.2"
	return in
}

// Test assertions

// AssertPhase checks the request's phase
func AssertPhase(t *testing.T, request *ExceptionRequest, expected Phase) {
	t.Helper()
	if request.Phase != expected {
		t.Errorf("Expected phase %s, got %s", expected, request.Phase)
	}
}

// AssertStatus checks the request's status
func AssertStatus(t *testing.T, request *ExceptionRequest, expected Status) {
	t.Helper()
	if request.Status != expected {
		t.Errorf("Expected status %s, got %s", expected, request.Status)
	}
}

// AssertOutcomes checks the three reviewer outcomes in review order
func AssertOutcomes(t *testing.T, request *ExceptionRequest, iso, deptHead, ciso Outcome) {
	t.Helper()
	gotISO, gotDH, gotCISO := request.Outcomes()
	if gotISO != iso || gotDH != deptHead || gotCISO != ciso {
		t.Errorf("Expected outcomes (%q, %q, %q), got (%q, %q, %q)", iso, deptHead, ciso, gotISO, gotDH, gotCISO)
	}
}

// AssertEventProcessed checks if event was processed successfully
func AssertEventProcessed(t *testing.T, result *EventResult, shouldProcess bool) {
	t.Helper()
	if result.Processed != shouldProcess {
		if shouldProcess {
			t.Errorf("Expected event to be processed, got error: %v", result.Error)
		} else {
			t.Error("Expected event to be rejected")
		}
	}
}

// AssertErrorCode checks the classification of an error
func AssertErrorCode(t *testing.T, err error, expected ErrorCode) {
	t.Helper()
	if code := GetErrorCode(err); code != expected {
		t.Errorf("Expected error code %s, got %s (%v)", expected, code, err)
	}
}
