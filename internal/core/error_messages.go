package core

// # Error Codes Reference
//
// User-friendly error messages with codes for support reference. Users
// quote the code; support finds the technical error in the logs.
//
// Known error types are matched first (errors.Is / errors.As), then the
// error text is searched for known patterns, case-insensitive.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Dataset not found
//	CFG002 - Object type not found in API metadata
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - No objects to export
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Identifier column missing
//	IMP002 - Validation failed
//	IMP003 - Batch could not be written
//	IMP004 - Too many imports in progress
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Temporary API failure (timeout, connection, gateway)
//	NET002 - API rejected the request
//	NET003 - Authentication failed
//	NET004 - Request cancelled
//	NET005 - Request timed out
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not a valid xlsx workbook
//	FILE003 - No file provided
//
// # Default Error (ERR000)

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a user-facing error description.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgDatasetNotFound = UserMessage{
		Message: "Dataset not found",
		Action:  "Check the dataset name or the configuration directory",
		Code:    "CFG001",
	}
	msgObjectTypeUnknown = UserMessage{
		Message: "The configured object type is not known to the API",
		Action:  "Check objectType in the dataset configuration",
		Code:    "CFG002",
	}
	msgEmptyDataset = UserMessage{
		Message: "There are no objects to export",
		Action:  "Check the filter values or the object type",
		Code:    "EXP001",
	}
	msgMissingIdentifier = UserMessage{
		Message: "The identifier column is missing",
		Action:  "Start from an exported workbook and keep the identifier column",
		Code:    "IMP001",
	}
	msgValidationFailed = UserMessage{
		Message: "The workbook contains errors",
		Action:  "Fix the listed cells and upload again",
		Code:    "IMP002",
	}
	msgBatchFailed = UserMessage{
		Message: "Part of the import could not be written",
		Action:  "Earlier batches were saved. Check the API and import the file again",
		Code:    "IMP003",
	}
	msgTooManyImports = UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "IMP004",
	}
	msgTransient = UserMessage{
		Message: "The API is temporarily unavailable",
		Action:  "Please try again in a few moments",
		Code:    "NET001",
	}
	msgAPIRejected = UserMessage{
		Message: "The API rejected the request",
		Action:  "Check the values in the workbook",
		Code:    "NET002",
	}
	msgAuthFailed = UserMessage{
		Message: "Authentication with the API failed",
		Action:  "Check the client credentials",
		Code:    "NET003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "NET004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "NET005",
	}
	msgInvalidWorkbook = UserMessage{
		Message: "The file is not a valid Excel workbook",
		Action:  "Upload an .xlsx file",
		Code:    "FILE002",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is searched in order; first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller workbooks",
			Code:    "FILE001",
		},
	},
	{pattern: "invalid workbook", msg: msgInvalidWorkbook},
	{pattern: "zip: not a valid zip file", msg: msgInvalidWorkbook},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an .xlsx file to upload",
			Code:    "FILE003",
		},
	},
	{pattern: "oauth2", msg: msgAuthFailed},
	{pattern: "status 401", msg: msgAuthFailed},
	{pattern: "status 403", msg: msgAuthFailed},
	{pattern: "connection refused", msg: msgTransient},
	{pattern: "connection reset", msg: msgTransient},
	{pattern: "too many uploads", msg: msgTooManyImports},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := mapKnownError(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

func mapKnownError(err error) (UserMessage, bool) {
	var (
		cfgErr   *ConfigurationError
		valErr   *ValidationFailedError
		batchErr *BatchError
		apiErr   *APIError
	)
	switch {
	case errors.Is(err, ErrDatasetNotFound):
		return msgDatasetNotFound, true
	case errors.As(err, &cfgErr):
		return msgObjectTypeUnknown, true
	case errors.Is(err, ErrEmptyDataset):
		return msgEmptyDataset, true
	case errors.Is(err, ErrMissingIdentifierColumn):
		return msgMissingIdentifier, true
	case errors.As(err, &valErr):
		return msgValidationFailed, true
	case errors.Is(err, ErrTooManyUploads):
		return msgTooManyImports, true
	case errors.Is(err, ErrInvalidWorkbook):
		return msgInvalidWorkbook, true
	case errors.As(err, &batchErr):
		if IsTransient(batchErr.Err) {
			msg := msgBatchFailed
			msg.Action = msgTransient.Action + ". " + msg.Action
			return msg, true
		}
		return msgBatchFailed, true
	case errors.Is(err, context.Canceled):
		return msgCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout, true
	case IsTransient(err):
		return msgTransient, true
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return msgAuthFailed, true
		}
		return msgAPIRejected, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
