package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyDataset is returned when an export has no objects to write.
	ErrEmptyDataset = errors.New("empty dataset: no objects to export")

	// ErrMissingIdentifierColumn is returned when an import sheet has no identifier column.
	ErrMissingIdentifierColumn = errors.New("missing identifier column")

	// ErrTransient marks network failures that are safe to retry (timeouts,
	// refused or reset connections, gateway errors).
	ErrTransient = errors.New("transient network error")

	// ErrDatasetNotFound is returned when a dataset name is not configured.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidWorkbook is returned when an upload cannot be read as xlsx.
	ErrInvalidWorkbook = errors.New("invalid workbook")
)

// ConfigurationError reports a dataset configuration that cannot be
// reconciled with the API metadata. It is fatal for the operation.
type ConfigurationError struct {
	ObjectType string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: object type %q %s", e.ObjectType, e.Reason)
}

// ConversionWarning is a non-fatal per-cell conversion problem. The cell
// becomes null.
type ConversionWarning struct {
	Row    int // 1-based sheet row, 0 when not row-bound
	Column string
	Value  any
	Reason string
}

func (w ConversionWarning) Error() string {
	if w.Row > 0 {
		return fmt.Sprintf("row %d, column %q: cannot convert %v: %s", w.Row, w.Column, w.Value, w.Reason)
	}
	return fmt.Sprintf("column %q: cannot convert %v: %s", w.Column, w.Value, w.Reason)
}

// APIError is a non-2xx response from the object API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(body))
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case 502, 503, 504:
		return true
	}
	return false
}

// BatchError reports a batch that could not be written. Any report
// accumulated before the failure is discarded.
type BatchError struct {
	Batch    int // 1-based
	Batches  int
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d/%d failed after %d attempt(s): %v", e.Batch, e.Batches, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ValidationFailedError wraps a blocking validation result.
type ValidationFailedError struct {
	Errors []ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %d error(s)", len(e.Errors))
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}
