package web

// errors.go provides unified error responses for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error type
//  4. Error is mapped via core.MapError to get a user-friendly message
//  5. Technical error is logged with the request ID for correlation

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/datamakelaar/internal/core"
	"github.com/JonMunkholm/datamakelaar/internal/logging"
)

// ErrorResponse is the JSON body of every failed API call.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Errors lists the cells that blocked an import.
	Errors []core.ValidationError `json:"errors,omitempty"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var vErr *core.ValidationFailedError
	if errors.As(err, &vErr) {
		resp.Errors = vErr.Errors
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		vErr     *core.ValidationFailedError
		cfgErr   *core.ConfigurationError
		batchErr *core.BatchError
		apiErr   *core.APIError
	)
	switch {
	case errors.Is(err, core.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidWorkbook),
		errors.Is(err, core.ErrMissingIdentifierColumn),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &vErr), errors.Is(err, core.ErrEmptyDataset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &batchErr), errors.As(err, &apiErr), core.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
