package api

import (
	"encoding/json"
	"net/http"
)

// apiError is returned by REST handlers and rendered as
// {"message": ..., "code": ...}.
type apiError struct {
	Status  int
	Message string
	// Code overrides the code derived from Status.
	Code string
}

var statusCodes = map[int]string{
	http.StatusBadRequest:         "invalid_request",
	http.StatusUnauthorized:       "unauthorized",
	http.StatusNotFound:           "not_found",
	http.StatusMethodNotAllowed:   "method_not_allowed",
	http.StatusServiceUnavailable: "service_unavailable",
}

func (e *apiError) code() string {
	if e.Code != "" {
		return e.Code
	}
	if code, ok := statusCodes[e.Status]; ok {
		return code
	}
	if e.Status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return ""
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, err *apiError) {
	writeJSON(w, err.Status, errorBody{Message: err.Message, Code: err.code()})
}
