package observers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/exflow"
	"github.com/anggasct/exflow/pkg/config"
)

var start = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	engine *exflow.Engine
	clock  *exflow.TestClock
}

func newHarness(observers ...exflow.Observer) *harness {
	clock := exflow.NewTestClock(start)
	opts := []exflow.Option{
		exflow.WithClock(clock.Now),
		exflow.WithIDGenerator(&exflow.SequentialIDs{}),
	}
	for _, o := range observers {
		opts = append(opts, exflow.WithObserver(o))
	}
	return &harness{engine: exflow.NewEngine(exflow.NewMemoryStore(), opts...), clock: clock}
}

func (h *harness) approveAll(t *testing.T) *exflow.ExceptionRequest {
	t.Helper()
	ctx := context.Background()
	req, err := h.engine.Submit(ctx, exflow.CreateVulnerabilityInput())
	require.NoError(t, err)
	for _, role := range exflow.Roles {
		h.clock.Advance(time.Hour)
		req, err = h.engine.Review(ctx, req.RequestID, role, exflow.OutcomeApproved, string(role)+".reviewer", "")
		require.NoError(t, err)
	}
	return req
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug, DisableTime: true})
	h := newHarness(NewLoggingObserver(logger))
	ctx := context.Background()

	req := h.approveAll(t)
	_, err := h.engine.Review(ctx, req.RequestID, exflow.RoleISO, exflow.OutcomeApproved, "iso", "")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "exception request submitted")
	assert.Contains(t, out, "requestID=EXR-1")
	assert.Contains(t, out, "to=DEPARTMENT_HEAD_REVIEW")
	assert.Contains(t, out, "status changed")
	assert.Contains(t, out, "event rejected")
}

func TestLoggingObserver_VoidAndError(t *testing.T) {
	var buf bytes.Buffer
	o := NewLoggingObserver(hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug}))

	req := &exflow.ExceptionRequest{RequestID: "EXR-9", Void: &exflow.VoidMarker{Reason: "escalated"}}
	o.OnVoided(req)
	o.OnError(errors.New("boom"), "EXR-9")

	assert.Contains(t, buf.String(), "exception voided")
	assert.Contains(t, buf.String(), "reason=escalated")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestMetricsObserver(t *testing.T) {
	metrics := NewMetricsObserver()
	h := newHarness(metrics)
	metrics.SetClock(h.clock.Now)
	ctx := context.Background()

	req := h.approveAll(t)
	_, err := h.engine.Review(ctx, req.RequestID, exflow.RoleCISO, exflow.OutcomeApproved, "ciso", "")
	require.Error(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, 1, snap.Submitted)
	assert.Equal(t, 1, snap.PhaseEntries[exflow.PhaseISOReview])
	assert.Equal(t, 1, snap.PhaseEntries[exflow.PhaseCompleted])
	assert.Equal(t, time.Hour, snap.PhaseTimeSpent[exflow.PhaseISOReview])
	assert.Equal(t, time.Hour, snap.PhaseTimeSpent[exflow.PhaseCISOReview])
	assert.Equal(t, 3, snap.EventCounts[exflow.EventApprove])
	assert.Equal(t, 1, snap.TransitionCounts["CISO_REVIEW->COMPLETED"])
	assert.Equal(t, 1, snap.StatusCounts[exflow.StatusApproved])
	assert.Len(t, snap.RejectionCounts, 1)

	snap.EventCounts["tamper"] = 1
	assert.NotContains(t, metrics.Snapshot().EventCounts, "tamper")

	metrics.OnError(errors.New("x"), "EXR-1")
	assert.Equal(t, 1, metrics.GetErrorCount())

	metrics.Reset()
	assert.Zero(t, metrics.Snapshot().Submitted)
}

func TestMetricsObserver_BlockedReview(t *testing.T) {
	metrics := NewMetricsObserver()
	h := newHarness(metrics)
	ctx := context.Background()

	req, err := h.engine.Submit(ctx, exflow.CreateVulnerabilityInput())
	require.NoError(t, err)
	_, err = h.engine.Review(ctx, req.RequestID, exflow.RoleISO, exflow.OutcomeDeclined, "iso", "not acceptable")
	require.NoError(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, 1, snap.TransitionCounts["ISO_REVIEW->ISO_REVIEW"])
	assert.Equal(t, 1, snap.StatusCounts[exflow.StatusDeclined])
	assert.Equal(t, 1, snap.PhaseEntries[exflow.PhaseISOReview])
}

func TestValidationObserver(t *testing.T) {
	validation := NewValidationObserver(exflow.ApprovalMachine())
	h := newHarness(validation)
	ctx := context.Background()

	req := h.approveAll(t)
	_, err := h.engine.RevalidateOnRescan(ctx, req.RequestID, []exflow.Finding{
		{ID: "57608", Name: "SMB Signing not required", Severity: exflow.SeverityCritical},
	})
	require.NoError(t, err)

	assert.False(t, validation.HasViolations(), "%v", validation.GetViolations())
	assert.Empty(t, validation.GetUnvisitedPhases(exflow.Phases...))
}

func TestValidationObserver_DetectsViolations(t *testing.T) {
	validation := NewValidationObserver(exflow.ApprovalMachine())

	req := &exflow.ExceptionRequest{RequestID: "EXR-1", Phase: exflow.PhaseCompleted, Status: exflow.StatusApproved}
	validation.OnTransition(exflow.PhaseISOReview, exflow.PhaseCompleted, exflow.NewEvent(exflow.EventApprove, start), req)

	violations := validation.GetViolations()
	require.Len(t, violations, 3)
	assert.Contains(t, violations[0], "Invalid transition from 'ISO_REVIEW' to 'COMPLETED'")
	assert.Contains(t, violations[1], "does not match derived ISO_REVIEW")
	assert.Contains(t, violations[2], "status Approved does not match derived Pending")

	assert.Equal(t, []exflow.Phase{exflow.PhaseDepartmentHeadReview}, validation.GetUnvisitedPhases(exflow.PhaseCompleted, exflow.PhaseDepartmentHeadReview))

	validation.Reset()
	assert.False(t, validation.HasViolations())
}

type webhookRecorder struct {
	mutex    sync.Mutex
	payloads []WebhookPayload
}

func (r *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		var p WebhookPayload
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		r.mutex.Lock()
		r.payloads = append(r.payloads, p)
		r.mutex.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *webhookRecorder) events() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var names []string
	for _, p := range r.payloads {
		names = append(names, p.Event)
	}
	return names
}

func TestWebhookObserver(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	h := newHarness(NewWebhookObserver(nil, config.Notify{WebhookURL: srv.URL}))
	req := h.approveAll(t)
	_, err := h.engine.RevalidateOnRescan(context.Background(), req.RequestID, []exflow.Finding{
		{Name: "Remote Code Execution", Severity: exflow.SeverityCritical},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{WebhookSubmitted, WebhookStatusChanged, WebhookVoided}, rec.events())

	first := rec.payloads[0]
	assert.Equal(t, "EXR-1", first.RequestID)
	assert.Equal(t, exflow.PhaseISOReview, first.Phase)
	assert.Equal(t, exflow.StatusPending, first.Status)
	assert.Equal(t, "web01.example.edu", first.ServerName)
	assert.Equal(t, "jdoe", first.Requester)
	assert.Equal(t, "Department Head", first.ApproverRole)
	assert.Equal(t, "mhead", first.Approver)
	assert.Equal(t, exflow.StatusApproved, rec.payloads[1].Status)
	assert.Equal(t, exflow.StatusVoided, rec.payloads[2].Status)
}

func TestWebhookObserver_FailureDoesNotBlockWorkflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})
	h := newHarness(NewWebhookObserver(logger, config.Notify{WebhookURL: srv.URL}))

	req := h.approveAll(t)
	exflow.AssertStatus(t, req, exflow.StatusApproved)
	assert.Contains(t, buf.String(), "webhook rejected")
}
