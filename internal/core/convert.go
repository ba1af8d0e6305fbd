package core

// convert.go coerces raw CSV cells into record values.
//
// The transit export is loose about its formats:
//   - Dates are DD.MM.YYYY with an optional HH:MM:SS time part
//   - Numbers use a comma as the decimal separator and may contain spaces
//   - Cells may be wrapped in double quotes
//
// Coercion never fails: unparseable dates keep their raw text and unparseable
// numbers become 0.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ISOLayout is the timestamp layout used for all derived date strings.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var (
	dateRegex     = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})(?:\s+(\d{2}):(\d{2}):(\d{2}))?`)
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	idUnsafe      = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// CleanCell trims whitespace and removes every double quote from a cell.
func CleanCell(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

// SplitRow splits one line on the ';' delimiter and cleans each cell.
func SplitRow(line string) []string {
	cells := strings.Split(line, ";")
	for i, c := range cells {
		cells[i] = CleanCell(c)
	}
	return cells
}

// ParseDate extracts a DD.MM.YYYY[ HH:MM:SS] timestamp from s.
// The time is interpreted as UTC.
func ParseDate(s string) (time.Time, bool) {
	m := dateRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	var hour, minute, second int
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		second, _ = strconv.Atoi(m[6])
	}
	// time.Date normalizes out-of-range parts (32.01 becomes 01.02).
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), true
}

// CoerceDate converts a date cell to ISO-8601, keeping the raw text when it
// does not match the expected format.
func CoerceDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format(ISOLayout)
	}
	return s
}

// ParseNumber strips whitespace, treats the first comma as the decimal
// separator, and parses the leading numeric prefix. Empty or invalid input
// yields 0.
func ParseNumber(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	clean = strings.Replace(clean, ",", ".", 1)

	prefix := leadingNumber.FindString(clean)
	if prefix == "" {
		return 0
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseTimestamp parses a stored date value: ISO-8601 first, then the
// source DD.MM.YYYY form.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{ISOLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return ParseDate(s)
}

// RecordID builds the identifier-safe id of a parsed row.
func RecordID(orderNumber, transmissionDate, messageCode string, rowIndex int) string {
	raw := strings.Join([]string{orderNumber, transmissionDate, messageCode, strconv.Itoa(rowIndex)}, "_")
	return idUnsafe.ReplaceAllString(raw, "")
}
