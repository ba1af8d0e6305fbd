// Package core provides the domain logic for transit record imports.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"slices"
	"time"
)

// FieldType represents the coerced data type of a CSV column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldNumeric
)

func (t FieldType) String() string {
	switch t {
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	default:
		return "text"
	}
}

// FieldSpec describes one known column of the transit export.
type FieldSpec struct {
	Header string    // Source header text (Cyrillic, must match CSV exactly)
	Name   string    // Semantic field name used in records and exports
	Type   FieldType // Coercion applied by the parser
}

// AnomalyProbability is the coarse four-level suspicion category of a record.
type AnomalyProbability string

const (
	ProbabilityHigh     AnomalyProbability = "high"
	ProbabilityElevated AnomalyProbability = "elevated"
	ProbabilityMedium   AnomalyProbability = "medium"
	ProbabilityLow      AnomalyProbability = "low"
)

// Probabilities lists every probability level from most to least suspicious.
var Probabilities = []AnomalyProbability{ProbabilityHigh, ProbabilityElevated, ProbabilityMedium, ProbabilityLow}

// Valid reports whether p is one of the four known levels.
func (p AnomalyProbability) Valid() bool {
	return p.Priority() > 0
}

// Priority orders probabilities for sorting: high=4 down to low=1, unknown=0.
func (p AnomalyProbability) Priority() int {
	switch p {
	case ProbabilityHigh:
		return 4
	case ProbabilityElevated:
		return 3
	case ProbabilityMedium:
		return 2
	case ProbabilityLow:
		return 1
	default:
		return 0
	}
}

// AnomalyType is one kind of irregularity flagged on a record.
type AnomalyType string

const (
	AnomalyWeight    AnomalyType = "weight"
	AnomalyTime      AnomalyType = "time"
	AnomalyRoute     AnomalyType = "route"
	AnomalyDuplicate AnomalyType = "duplicate"
)

// KnownAnomalyTypes lists every anomaly type the classifiers produce.
var KnownAnomalyTypes = []AnomalyType{AnomalyWeight, AnomalyTime, AnomalyRoute, AnomalyDuplicate}

// Valid reports whether t is a known anomaly type.
func (t AnomalyType) Valid() bool {
	return slices.Contains(KnownAnomalyTypes, t)
}

// RiskLevel is the five-step risk scale used by the table filters.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists the risk scale from lowest to highest.
var RiskLevels = []RiskLevel{RiskMinimal, RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Valid reports whether l is on the risk scale.
func (l RiskLevel) Valid() bool {
	return slices.Contains(RiskLevels, l)
}

// ImportMode selects how parsed records enter the store.
type ImportMode string

const (
	ImportReplace ImportMode = "replace"
	ImportAppend  ImportMode = "append"
)

// ParseImportMode parses a mode string, defaulting to replace for empty input.
func ParseImportMode(s string) (ImportMode, bool) {
	switch ImportMode(s) {
	case "", ImportReplace:
		return ImportReplace, true
	case ImportAppend:
		return ImportAppend, true
	default:
		return "", false
	}
}

// ParseResult is the outcome of parsing one CSV text.
// Row problems are reported as data, never as a returned error.
type ParseResult struct {
	Data      []Record `json:"data"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings,omitempty"`
	TotalRows int      `json:"totalRows"`
	ValidRows int      `json:"validRows"`
}

// AnomalyStats is a tally of records by anomaly probability.
type AnomalyStats struct {
	Total    int `json:"total"`
	High     int `json:"high"`
	Elevated int `json:"elevated"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Tally counts records by probability in a single pass.
func Tally(records []Record) AnomalyStats {
	stats := AnomalyStats{Total: len(records)}
	for i := range records {
		switch records[i].AnomalyProbability {
		case ProbabilityHigh:
			stats.High++
		case ProbabilityElevated:
			stats.Elevated++
		case ProbabilityMedium:
			stats.Medium++
		case ProbabilityLow:
			stats.Low++
		}
	}
	return stats
}

// ImportSummary is returned to callers after an import completes.
type ImportSummary struct {
	ImportID   string     `json:"importId"`
	Mode       ImportMode `json:"mode"`
	FileName   string     `json:"fileName,omitempty"`
	TotalRows  int        `json:"totalRows"`
	ValidRows  int        `json:"validRows"`
	Added      int        `json:"added"`
	Duplicates int        `json:"duplicates"`
	ErrorCount int        `json:"errorCount"`
	Errors     []string   `json:"errors,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Duration   string     `json:"duration"`
	FinishedAt time.Time  `json:"finishedAt"`
}
