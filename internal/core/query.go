package core

import (
	"slices"
	"strings"
	"time"
)

// DefaultPageSize is the table page size when none is requested.
const DefaultPageSize = 100

// MaxPageSize caps client-requested page sizes.
const MaxPageSize = 1000

// RecentWindow is the look-back period of the recent_only quick filter.
const RecentWindow = 7 * 24 * time.Hour

// QuickFilters are predefined boolean predicates.
type QuickFilters struct {
	OnlyAnomalies       bool `json:"only_anomalies"`
	HighProbabilityOnly bool `json:"high_probability_only"`
	RecentOnly          bool `json:"recent_only"`
}

// FilterSet groups the table filters. Groups combine with AND; values within
// a group combine with OR. An empty group does not filter.
type FilterSet struct {
	Probability []AnomalyProbability `json:"probability,omitempty"`
	Risk        []RiskLevel          `json:"risk,omitempty"`
	Anomaly     []string             `json:"anomaly,omitempty"` // AnomalyType values or NoAnomalies
	Quick       QuickFilters         `json:"quick"`
}

// NoAnomalies is the anomaly filter value that selects clean records.
const NoAnomalies = "no_anomalies"

// QueryParams describes one table request.
type QueryParams struct {
	Filter   FilterSet
	Search   string
	Sort     SortState
	Page     int // 1-based
	PageSize int
	Now      time.Time // reference time for RecentOnly; zero means time.Now
}

// QueryResult is one page of filtered, sorted records.
type QueryResult struct {
	Records    []Record `json:"records"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

// searchColumns are matched by free-text search.
var searchColumns = []Column{
	ColWagonContainerNumber,
	ColCargoName,
	ColMessageCode,
	ColOrderNumber,
	ColDepartureStationName,
	ColDestinationStationName,
	ColCalculationPlace,
	ColShipper,
	ColConsignee,
}

// Query filters, sorts, and pages records. The input slice is not modified.
func Query(records []Record, q QueryParams) QueryResult {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}

	m := newMatcher(q)
	filtered := make([]Record, 0, len(records))
	for i := range records {
		if m.match(&records[i]) {
			filtered = append(filtered, records[i])
		}
	}

	SortRecords(filtered, q.Sort)

	total := len(filtered)
	totalPages := (total + q.PageSize - 1) / q.PageSize
	offset := (q.Page - 1) * q.PageSize

	page := []Record{}
	if offset < total {
		end := min(offset+q.PageSize, total)
		page = filtered[offset:end]
	}

	return QueryResult{
		Records:    page,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}
}

// matcher holds the precomputed predicates of one query.
type matcher struct {
	probability []AnomalyProbability
	risk        []RiskLevel
	anomaly     []AnomalyType
	clean       bool
	quick       QuickFilters
	search      string
	cutoff      time.Time
}

func newMatcher(q QueryParams) matcher {
	m := matcher{
		probability: q.Filter.Probability,
		risk:        q.Filter.Risk,
		quick:       q.Filter.Quick,
		search:      strings.ToLower(strings.TrimSpace(q.Search)),
		cutoff:      q.Now.Add(-RecentWindow),
	}
	for _, a := range q.Filter.Anomaly {
		if a == NoAnomalies {
			m.clean = true
			continue
		}
		m.anomaly = append(m.anomaly, AnomalyType(a))
	}
	return m
}

func (m *matcher) match(r *Record) bool {
	if len(m.probability) > 0 && !slices.Contains(m.probability, r.AnomalyProbability) {
		return false
	}
	if len(m.risk) > 0 && !slices.Contains(m.risk, r.Risk()) {
		return false
	}

	// Selecting no_anomalies overrides any specific types in the same group.
	if m.clean {
		if r.HasAnomalies() {
			return false
		}
	} else if len(m.anomaly) > 0 && !slices.ContainsFunc(m.anomaly, r.HasType) {
		return false
	}

	if m.quick.OnlyAnomalies && !r.HasAnomalies() {
		return false
	}
	if m.quick.HighProbabilityOnly && r.AnomalyProbability != ProbabilityHigh {
		return false
	}
	if m.quick.RecentOnly {
		t, ok := ParseTimestamp(r.Text(ColTransmissionDate))
		if !ok || !t.After(m.cutoff) {
			return false
		}
	}

	if m.search != "" && !m.matchSearch(r) {
		return false
	}
	return true
}

func (m *matcher) matchSearch(r *Record) bool {
	for _, c := range searchColumns {
		if strings.Contains(strings.ToLower(r.Text(c)), m.search) {
			return true
		}
	}
	return false
}
