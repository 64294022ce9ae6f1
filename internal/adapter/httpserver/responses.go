// Package httpserver contains the read-only query API handlers and
// middleware.
//
// It surfaces the persisted listings over JSON endpoints and keeps HTTP
// concerns (parameter parsing, validation, response envelopes) separate
// from the query logic behind the domain ports.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrDatabase):
		code = http.StatusServiceUnavailable
		codeStr = "DATABASE_UNAVAILABLE"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
