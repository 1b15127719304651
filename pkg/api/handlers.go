package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anggasct/exflow"
)

const maxBodyBytes = 1 << 20

// createBody accepts loosely typed duration and date values from web forms
type createBody struct {
	exflow.CreateInput
	ExceptionDurationType any `json:"exceptionDurationType"`
	CustomExpirationDate  any `json:"customExpirationDate,omitempty"`
}

type reviewBody struct {
	Role       string `json:"role"`
	Outcome    string `json:"outcome"`
	ReviewedBy string `json:"reviewedBy"`
	Comments   string `json:"comments"`
}

type resubmitBody struct {
	Justification      *string `json:"justification,omitempty"`
	Mitigation         *string `json:"mitigation,omitempty"`
	AdditionalInfo     *string `json:"additionalInfo,omitempty"`
	DataClassification *string `json:"dataClassification,omitempty"`
	ExpirationDate     any     `json:"expirationDate,omitempty"`
	Comment            string  `json:"comment"`
}

type revalidateBody struct {
	Findings []any `json:"findings"`
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if !decode(w, r, &body) {
		return
	}

	in := body.CreateInput
	if user := remoteUser(r); user != "" {
		in.RequestedBy = user
	}
	if body.ExceptionDurationType != nil {
		in.ExceptionDurationType = exflow.DurationSelector(fmt.Sprint(body.ExceptionDurationType))
	}
	if body.CustomExpirationDate != nil {
		t, ok := exflow.ParseDate(body.CustomExpirationDate)
		if !ok {
			writeError(w, exflow.NewValidationError("customExpirationDate", "expiration date invalid or in the past"))
			return
		}
		in.CustomExpirationDate = &t
	}

	req, err := s.engine.Submit(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := exflow.Filter{
		Status:      exflow.Status(q.Get("status")),
		Phase:       exflow.Phase(q.Get("phase")),
		Type:        exflow.ExceptionType(q.Get("type")),
		RequestedBy: q.Get("requestedBy"),
		ServerName:  q.Get("server"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, exflow.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	var expiry exflow.ExpiryState
	if raw := q.Get("expiry"); raw != "" {
		state, ok := exflow.ParseExpiryState(raw)
		if !ok {
			writeError(w, exflow.NewValidationError("expiry", "must be active, expiring_soon or expired"))
			return
		}
		expiry = state
	}
	limit := filter.Limit
	if expiry != "" {
		// expiry is classified after loading; the limit applies to the matches
		filter.Limit = 0
	}

	reqs, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if expiry != "" {
		reqs = filterByExpiry(reqs, expiry, s.engine.Now(), limit)
	}
	writeJSON(w, http.StatusOK, reqs)
}

func filterByExpiry(reqs []*exflow.ExceptionRequest, state exflow.ExpiryState, now time.Time, limit int) []*exflow.ExceptionRequest {
	matched := make([]*exflow.ExceptionRequest, 0, len(reqs))
	for _, req := range reqs {
		if req.Expiry(now) != state {
			continue
		}
		matched = append(matched, req)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) reviewRequest(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if !decode(w, r, &body) {
		return
	}

	role, ok := exflow.ParseRole(body.Role)
	if !ok {
		writeError(w, exflow.NewValidationError("role", fmt.Sprintf("unknown role %q", body.Role)))
		return
	}
	outcome, ok := exflow.ParseOutcome(body.Outcome)
	if !ok {
		writeError(w, exflow.NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", body.Outcome)))
		return
	}
	reviewedBy := body.ReviewedBy
	if user := remoteUser(r); user != "" {
		reviewedBy = user
	}

	req, err := s.engine.Review(r.Context(), chi.URLParam(r, "requestID"), role, outcome, reviewedBy, body.Comments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) resubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body resubmitBody
	if !decode(w, r, &body) {
		return
	}

	fields := &exflow.UpdateFields{
		Justification:  body.Justification,
		Mitigation:     body.Mitigation,
		AdditionalInfo: body.AdditionalInfo,
	}
	if body.DataClassification != nil {
		dc, ok := exflow.ParseDataClassification(*body.DataClassification)
		if !ok {
			writeError(w, exflow.NewValidationError("dataClassification", "unknown data classification"))
			return
		}
		fields.DataClassification = &dc
	}
	if body.ExpirationDate != nil {
		t, ok := exflow.ParseDate(body.ExpirationDate)
		if !ok {
			writeError(w, exflow.NewValidationError("expirationDate", "expiration date invalid or in the past"))
			return
		}
		fields.ExpirationDate = &t
	}
	if fields.IsEmpty() {
		fields = nil
	}

	req, err := s.engine.Resubmit(r.Context(), chi.URLParam(r, "requestID"), fields, body.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) revalidateRequest(w http.ResponseWriter, r *http.Request) {
	var body revalidateBody
	if !decode(w, r, &body) {
		return
	}

	result, err := s.engine.RevalidateOnRescan(r.Context(), chi.URLParam(r, "requestID"), exflow.NormalizeFindings(body.Findings))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func remoteUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(RemoteUserHeader))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid json: " + err.Error(),
			Code:  exflow.ErrCodeValidation.String(),
		})
		return false
	}
	return true
}
