package core

import (
	"fmt"
	"strings"
	"time"
)

// LargeInputBytes is the estimated in-memory size above which the parser
// warns that the result may not persist in full.
var LargeInputBytes = 50 * 1024 * 1024

// LargeInputLines is the line count above which the parser warns.
var LargeInputLines = 100_000

// ErrMsgNoDataRows is reported when the text has no data row after the header.
const ErrMsgNoDataRows = "CSV file must contain headers and at least one data row"

// Parser converts ';'-delimited transit exports into records.
// The zero value uses a random classifier and the wall clock.
type Parser struct {
	Classifier Classifier
	Now        func() time.Time
}

var defaultParser = &Parser{}

// Parse parses text with the default parser.
func Parse(text string) ParseResult {
	return defaultParser.Parse(text)
}

// Parse converts raw CSV text into records. Malformed rows are reported in
// Errors and skipped; parsing always continues to the next row.
func (p *Parser) Parse(text string) ParseResult {
	result := ParseResult{Data: []Record{}, Errors: []string{}}

	if est := len(text) * 2; est > LargeInputBytes {
		p.warn(&result, fmt.Sprintf("large input (~%.1fMB in memory); the store may keep only a compact snapshot", float64(est)/(1024*1024)))
	}

	lines := splitLines(text)
	if len(lines) < 2 {
		result.Errors = append(result.Errors, ErrMsgNoDataRows)
		return result
	}
	if len(lines) > LargeInputLines {
		p.warn(&result, fmt.Sprintf("file contains %d lines; the store may keep only a compact snapshot", len(lines)))
	}

	headers := SplitRow(lines[0])
	if missing := missingHeaders(headers); len(missing) > 0 {
		result.Warnings = append(result.Warnings, "missing recommended headers: "+strings.Join(missing, ", "))
	}

	types := make([]FieldType, len(headers))
	for i, h := range headers {
		types[i] = HeaderFieldType(h)
	}

	classifier := p.classifier()
	importDate := p.now().UTC().Format(ISOLayout)

	for i := 1; i < len(lines); i++ {
		lineNumber := i + 1
		result.TotalRows++

		values := SplitRow(lines[i])
		if len(values) != len(headers) {
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: expected %d columns, got %d", lineNumber, len(headers), len(values)))
			continue
		}

		var rec Record
		for j, h := range headers {
			if IsDerivedKey(h) {
				continue
			}
			rec.setCell(h, types[j], values[j])
		}

		orderNumber := rec.Text(ColOrderNumber)
		messageCode := rec.Text(ColMessageCode)
		if orderNumber == "" && messageCode == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: missing both order number and message code", lineNumber))
			continue
		}

		rec.ID = RecordID(orderNumber, rec.Text(ColTransmissionDate), messageCode, i)
		rec.ImportDate = importDate
		rec.SourceLine = lineNumber
		rec.AnomalyProbability, rec.AnomalyTypes = classifier.Classify(rec)

		result.Data = append(result.Data, rec)
		result.ValidRows++
	}

	return result
}

func (p *Parser) classifier() Classifier {
	if p.Classifier != nil {
		return p.Classifier
	}
	return sharedRandom
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

var sharedRandom = NewRandomClassifier()

// warn records an informational note. It goes to Errors so callers that only
// inspect Errors still see it, and to Warnings for callers that separate them.
func (p *Parser) warn(result *ParseResult, msg string) {
	result.Errors = append(result.Errors, msg)
	result.Warnings = append(result.Warnings, msg)
}

// setCell stores one coerced cell under its mapped field name.
func (r *Record) setCell(header string, t FieldType, value string) {
	var v any
	switch {
	case t == FieldDate && value != "":
		v = CoerceDate(value)
	case t == FieldNumeric:
		v = ParseNumber(value)
	default:
		v = value
	}

	if c, ok := LookupHeader(header); ok {
		r.known[c] = v
		return
	}
	r.Set(header, v)
}

// splitLines splits on '\n', trims a trailing '\r', and drops blank lines.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := raw[:0]
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func missingHeaders(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, h := range RecommendedHeaders {
		if c, _ := LookupHeader(h); present[h] || present[c.Name()] {
			continue
		}
		missing = append(missing, h)
	}
	return missing
}
