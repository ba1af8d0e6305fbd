// Package core provides the domain logic for transit record imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users can quote the code when reporting a problem.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum import size
//	          Action: Split the export into smaller files
//	          Patterns: "exceeds maximum size", "must not exceed"
//
//	FILE002 - Invalid file: The file failed pre-import checks
//	          Action: Upload a ';'-delimited CSV export
//	          Patterns: "file validation failed", "only csv and excel"
//
//	FILE003 - Too small: The file is too small or corrupt
//	          Action: Check that the export finished writing
//	          Patterns: "too small or corrupt"
//
//	FILE004 - No file: No file was provided
//	          Action: Select a CSV file to import
//	          Patterns: "no file provided"
//
//	FILE005 - Spreadsheet: Binary Excel content cannot be read
//	          Action: Save the sheet as CSV (semicolon separated)
//	          Patterns: "binary spreadsheet"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Invalid mode: Import mode must be replace or append
//	IMP002 - System busy: Too many imports in progress
//	IMP003 - No valid rows: Every row in the file was rejected
//	IMP004 - Import cancelled: The request was cancelled
//	IMP005 - Import timeout: The request timed out
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Quota exceeded: Snapshot is larger than the storage budget
//	STO002 - Storage unreachable: Backend connection failed
//	STO003 - Unknown backend: The configured backend is not supported
//
// # Query Errors (QRY001-QRY099)
//
//	QRY001 - Not found: The requested record does not exist
//	QRY002 - Bad parameter: A query parameter could not be parsed
//
// # Rate Limiting (RATE001)
//
// # Default Error (ERR000)
//
// Any error matching no pattern maps to ERR000; the technical error is in the
// application log.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors raised by import and query operations.
var (
	ErrNoFile         = errors.New("no file provided")
	ErrFileRejected   = errors.New("file validation failed")
	ErrInvalidMode    = errors.New("invalid import mode")
	ErrNoValidRows    = errors.New("no valid rows in import")
	ErrRecordNotFound = errors.New("record not found")
	ErrBadParameter   = errors.New("bad query parameter")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorSentinel maps a wrapped sentinel to a message. Sentinels are checked
// with errors.Is before any text pattern.
type errorSentinel struct {
	target error
	msg    UserMessage
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum import size",
		Action:  "Split the export into smaller files",
		Code:    "FILE001",
	}
	msgInvalidFile = UserMessage{
		Message: "The file is not a supported CSV export",
		Action:  "Upload a semicolon-delimited CSV export",
		Code:    "FILE002",
	}
	msgNoFile = UserMessage{
		Message: "No file was provided",
		Action:  "Select a CSV file to import",
		Code:    "FILE004",
	}
	msgSpreadsheet = UserMessage{
		Message: "Excel workbooks cannot be imported directly",
		Action:  "Save the sheet as CSV (semicolon separated) and import that file",
		Code:    "FILE005",
	}
	msgInvalidMode = UserMessage{
		Message: "Import mode must be replace or append",
		Action:  "Choose replace or append",
		Code:    "IMP001",
	}
	msgTooManyImports = UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}
	msgNoValidRows = UserMessage{
		Message: "No valid rows were found in the file",
		Action:  "Check the header row and that each row has an order number or message code",
		Code:    "IMP003",
	}
	msgNotFound = UserMessage{
		Message: "The requested record does not exist",
		Action:  "Refresh the table; the data may have been replaced",
		Code:    "QRY001",
	}
	msgBadParameter = UserMessage{
		Message: "A query parameter is invalid",
		Action:  "Check the filter and sort values",
		Code:    "QRY002",
	}
)

var errorSentinels = []errorSentinel{
	{ErrInputTooLarge, msgFileTooLarge},
	{ErrBinarySpreadsheet, msgSpreadsheet},
	{ErrFileRejected, msgInvalidFile},
	{ErrNoFile, msgNoFile},
	{ErrInvalidMode, msgInvalidMode},
	{ErrTooManyImports, msgTooManyImports},
	{ErrNoValidRows, msgNoValidRows},
	{ErrRecordNotFound, msgNotFound},
	{ErrBadParameter, msgBadParameter},
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{pattern: "exceeds maximum size", msg: msgFileTooLarge},
	{pattern: "must not exceed", msg: msgFileTooLarge},
	{pattern: "request body too large", msg: msgFileTooLarge},
	{pattern: "only csv and excel", msg: msgInvalidFile},
	{
		pattern: "too small or corrupt",
		msg: UserMessage{
			Message: "The file is too small or corrupt",
			Action:  "Check that the export finished writing and try again",
			Code:    "FILE003",
		},
	},
	{pattern: "binary spreadsheet", msg: msgSpreadsheet},

	// =========================================================================
	// Import Errors (IMP004-IMP006)
	// IMP004 and IMP005 come from the request context, not the import itself.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The import was cancelled",
			Action:  "Start the import again when ready",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The import timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "IMP005",
		},
	},

	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "The import does not exist or has expired",
			Action:  "Start the import again",
			Code:    "IMP006",
		},
	},

	// =========================================================================
	// Backend Errors (BKD001-BKD002)
	// =========================================================================
	{
		pattern: "no fixture for endpoint",
		msg: UserMessage{
			Message: "Reference data is unavailable",
			Action:  "Check that the backend API is running",
			Code:    "BKD001",
		},
	},
	{
		pattern: "unknown backend group",
		msg: UserMessage{
			Message: "Unknown reference data group",
			Action:  "Use one of the documented backend groups",
			Code:    "BKD002",
		},
	},

	// =========================================================================
	// Storage Errors (STO001-STO003)
	// =========================================================================
	{
		pattern: "quota exceeded",
		msg: UserMessage{
			Message: "The snapshot does not fit in storage",
			Action:  "Data stays available until restart; raise the storage budget to keep all of it",
			Code:    "STO001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the storage backend",
			Action:  "Please try again in a few moments",
			Code:    "STO002",
		},
	},
	{
		pattern: "unknown storage backend",
		msg: UserMessage{
			Message: "The configured storage backend is not supported",
			Action:  "Set STORAGE_BACKEND to memory, file, postgres, redis, or sqlite",
			Code:    "STO003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Wrapped sentinels are matched first, then text patterns; anything else
// maps to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, es := range errorSentinels {
		if errors.Is(err, es.target) {
			return es.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
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
	Details   []string    // Optional per-row or per-check details
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error, details ...string) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
		Details:   details,
	}
}
