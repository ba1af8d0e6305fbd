package core

// validation.go checks files before parsing and records before storage.
//
// Validation happens at two levels:
//  1. File validation: extension or MIME type, and size bounds
//  2. Record validation: identity fields, date formats, and numeric fields
//
// Both return messages as data. An empty slice means the input passed.

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// File size bounds applied by ValidateFile. Config may override them.
var (
	MaxImportBytes int64 = 500 * 1024 * 1024
	MinImportBytes int64 = 100
)

// Validation messages returned by ValidateFile.
const (
	MsgUnsupportedType = "only CSV and Excel files are supported"
	MsgTooSmall        = "file is too small or corrupt"
)

var (
	allowedMIMETypes = []string{
		"text/csv",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
	allowedExtensions = []string{"csv", "xls", "xlsx"}
)

// ValidationError represents a single validation problem for a field.
type ValidationError struct {
	Field   string // Field name, empty for file-level problems
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// FileLimits bounds accepted import sizes.
type FileLimits struct {
	MaxBytes int64
	MinBytes int64
}

// DefaultFileLimits returns the package-level bounds.
func DefaultFileLimits() FileLimits {
	return FileLimits{MaxBytes: MaxImportBytes, MinBytes: MinImportBytes}
}

// ValidateFile checks a candidate import by name, MIME type, and size using
// the default limits.
func ValidateFile(name, contentType string, size int64) []string {
	return DefaultFileLimits().Validate(name, contentType, size)
}

// Validate checks a candidate import against these limits. The type check
// passes when either the MIME type or the extension is acceptable.
func (l FileLimits) Validate(name, contentType string, size int64) []string {
	errs := []string{}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !slices.Contains(allowedMIMETypes, mime) && !slices.Contains(allowedExtensions, ext) {
		errs = append(errs, MsgUnsupportedType)
	}

	if l.MaxBytes > 0 && size > l.MaxBytes {
		errs = append(errs, fmt.Sprintf("file size must not exceed %dMB", l.MaxBytes/(1024*1024)))
	}
	if size < l.MinBytes {
		errs = append(errs, MsgTooSmall)
	}

	return errs
}

var (
	dateFields    = []Column{ColTransmissionDate, ColDepartureDate, ColArrivalDate, ColIssueDate}
	numericFields = []Column{ColTotalWeight, ColWagonAmount, ColWagonWeight, ColDistance}
)

// ValidateRecord checks a record that may not have come from the parser,
// such as one loaded from storage or posted by a client.
func ValidateRecord(r Record) []ValidationError {
	var errs []ValidationError

	if r.ID == "" {
		errs = append(errs, ValidationError{Field: KeyID, Message: "record id is missing"})
	}
	if r.Text(ColOrderNumber) == "" && r.Text(ColMessageCode) == "" {
		errs = append(errs, ValidationError{Message: "either order number or message code is required"})
	}

	for _, c := range dateFields {
		s := r.Text(c)
		if s == "" {
			continue
		}
		if _, ok := ParseTimestamp(s); !ok {
			errs = append(errs, ValidationError{Field: c.Name(), Message: "invalid date format"})
		}
	}

	for _, c := range numericFields {
		v, ok := r.Value(c)
		if !ok || v == "" {
			continue
		}
		if _, err := cast.ToFloat64E(v); err != nil {
			errs = append(errs, ValidationError{Field: c.Name(), Message: "invalid numeric format"})
		}
	}

	if r.AnomalyProbability != "" && !r.AnomalyProbability.Valid() {
		errs = append(errs, ValidationError{Field: KeyAnomalyProbability, Message: fmt.Sprintf("unknown probability %q", r.AnomalyProbability)})
	}

	return errs
}
