package api

import (
	"encoding/json"
	"net/http"

	"github.com/anggasct/exflow"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch exflow.GetErrorCode(err) {
	case exflow.ErrCodeValidation:
		return http.StatusBadRequest
	case exflow.ErrCodeInvalidTransition, exflow.ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case exflow.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{
		Error: err.Error(),
		Code:  exflow.GetErrorCode(err).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
