package core

import (
	"fmt"
	"testing"
	"time"
)

var queryNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recOpt func(*Record)

func withCol(c Column, v any) recOpt { return func(r *Record) { r.SetColumn(c, v) } }

func newRec(id string, p AnomalyProbability, types []AnomalyType, opts ...recOpt) Record {
	r := Record{ID: id, AnomalyProbability: p, AnomalyTypes: types}
	if r.AnomalyTypes == nil {
		r.AnomalyTypes = []AnomalyType{}
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func sampleRecords() []Record {
	return []Record{
		newRec("a", ProbabilityHigh, []AnomalyType{AnomalyWeight, AnomalyRoute},
			withCol(ColCargoName, "Уголь каменный"),
			withCol(ColTransmissionDate, "2024-03-14T08:00:00.000Z"),
			withCol(ColTotalWeight, 68.0)),
		newRec("b", ProbabilityLow, nil,
			withCol(ColCargoName, "Зерно"),
			withCol(ColTransmissionDate, "2024-01-02T08:00:00.000Z"),
			withCol(ColTotalWeight, 120.5)),
		newRec("c", ProbabilityElevated, []AnomalyType{AnomalyTime},
			withCol(ColCargoName, "Арматура"),
			withCol(ColWagonContainerNumber, "TKRU1234567"),
			withCol(ColTransmissionDate, "2024-03-10T08:00:00.000Z"),
			withCol(ColTotalWeight, 9.0)),
		newRec("d", ProbabilityMedium, nil,
			withCol(ColCargoName, "уголь бурый"),
			withCol(ColTransmissionDate, "n/a"),
			withCol(ColTotalWeight, 45.0)),
	}
}

func ids(records []Record) string {
	s := ""
	for _, r := range records {
		s += r.ID
	}
	return s
}

func TestQuery_Filters(t *testing.T) {
	tests := []struct {
		name   string
		params QueryParams
		want   string
	}{
		{name: "no filters", params: QueryParams{}, want: "abcd"},
		{
			name:   "probability OR within group",
			params: QueryParams{Filter: FilterSet{Probability: []AnomalyProbability{ProbabilityHigh, ProbabilityLow}}},
			want:   "ab",
		},
		{
			name:   "risk derived from probability",
			params: QueryParams{Filter: FilterSet{Risk: []RiskLevel{RiskCritical, RiskMedium}}},
			want:   "ac",
		},
		{
			name:   "anomaly type",
			params: QueryParams{Filter: FilterSet{Anomaly: []string{"time"}}},
			want:   "c",
		},
		{
			name:   "no anomalies",
			params: QueryParams{Filter: FilterSet{Anomaly: []string{NoAnomalies}}},
			want:   "bd",
		},
		{
			name:   "no anomalies overrides types",
			params: QueryParams{Filter: FilterSet{Anomaly: []string{"weight", NoAnomalies}}},
			want:   "bd",
		},
		{
			name: "groups combine with AND",
			params: QueryParams{Filter: FilterSet{
				Probability: []AnomalyProbability{ProbabilityHigh, ProbabilityElevated},
				Anomaly:     []string{"route"},
			}},
			want: "a",
		},
		{
			name:   "only anomalies",
			params: QueryParams{Filter: FilterSet{Quick: QuickFilters{OnlyAnomalies: true}}},
			want:   "ac",
		},
		{
			name:   "high probability only",
			params: QueryParams{Filter: FilterSet{Quick: QuickFilters{HighProbabilityOnly: true}}},
			want:   "a",
		},
		{
			name:   "recent only skips unparseable dates",
			params: QueryParams{Filter: FilterSet{Quick: QuickFilters{RecentOnly: true}}},
			want:   "ac",
		},
		{
			name:   "search is case-insensitive and trimmed",
			params: QueryParams{Search: "  УГОЛЬ "},
			want:   "ad",
		},
		{
			name:   "search wagon number",
			params: QueryParams{Search: "tkru"},
			want:   "c",
		},
		{
			name:   "search without match",
			params: QueryParams{Search: "нефть"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.Now = queryNow
			res := Query(sampleRecords(), tt.params)
			if got := ids(res.Records); got != tt.want {
				t.Errorf("records = %q, want %q", got, tt.want)
			}
			if res.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestQuery_Sort(t *testing.T) {
	tests := []struct {
		name string
		sort SortState
		want string
	}{
		{name: "unsorted keeps input order", sort: SortState{Column: "cargo_name"}, want: "abcd"},
		{name: "numeric asc", sort: SortState{Column: "total_weight", Direction: SortAsc}, want: "cdab"},
		{name: "numeric desc", sort: SortState{Column: "total_weight", Direction: SortDesc}, want: "badc"},
		{name: "text uses russian collation", sort: SortState{Column: "cargo_name", Direction: SortAsc}, want: "cbda"},
		{name: "date asc puts unparseable last", sort: SortState{Column: "transmission_date", Direction: SortAsc}, want: "bcad"},
		{name: "date desc puts unparseable last", sort: SortState{Column: "transmission_date", Direction: SortDesc}, want: "acbd"},
		{name: "probability by priority", sort: SortState{Column: KeyAnomalyProbability, Direction: SortDesc}, want: "acdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Query(sampleRecords(), QueryParams{Sort: tt.sort, Now: queryNow})
			if got := ids(res.Records); got != tt.want {
				t.Errorf("order = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuery_SortIsStable(t *testing.T) {
	records := []Record{
		newRec("1", ProbabilityHigh, nil),
		newRec("2", ProbabilityLow, nil),
		newRec("3", ProbabilityHigh, nil),
		newRec("4", ProbabilityLow, nil),
	}
	res := Query(records, QueryParams{Sort: SortState{Column: KeyAnomalyProbability, Direction: SortAsc}})
	if got := ids(res.Records); got != "2413" {
		t.Errorf("order = %q, want 2413", got)
	}
}

func TestQuery_DoesNotMutateInput(t *testing.T) {
	records := sampleRecords()
	Query(records, QueryParams{Sort: SortState{Column: "total_weight", Direction: SortAsc}})
	if got := ids(records); got != "abcd" {
		t.Errorf("input reordered to %q", got)
	}
}

func TestQuery_Pagination(t *testing.T) {
	var records []Record
	for i := 0; i < 25; i++ {
		records = append(records, newRec(fmt.Sprintf("r%02d", i), ProbabilityLow, nil))
	}

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantLen   int
		wantFirst string
		wantPages int
	}{
		{name: "first page", page: 1, pageSize: 10, wantLen: 10, wantFirst: "r00", wantPages: 3},
		{name: "last partial page", page: 3, pageSize: 10, wantLen: 5, wantFirst: "r20", wantPages: 3},
		{name: "out of range", page: 4, pageSize: 10, wantLen: 0, wantPages: 3},
		{name: "zero page treated as first", page: 0, pageSize: 10, wantLen: 10, wantFirst: "r00", wantPages: 3},
		{name: "default size", page: 1, pageSize: 0, wantLen: 25, wantFirst: "r00", wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Query(records, QueryParams{Page: tt.page, PageSize: tt.pageSize})
			if len(res.Records) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(res.Records), tt.wantLen)
			}
			if res.Records == nil {
				t.Error("Records must be non-nil")
			}
			if tt.wantLen > 0 && res.Records[0].ID != tt.wantFirst {
				t.Errorf("first = %q, want %q", res.Records[0].ID, tt.wantFirst)
			}
			if res.Total != 25 {
				t.Errorf("Total = %d, want 25", res.Total)
			}
			if res.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", res.TotalPages, tt.wantPages)
			}
		})
	}
}

func TestSortState_Toggle(t *testing.T) {
	var s SortState

	s = s.Toggle("cargo_name")
	if s != (SortState{Column: "cargo_name", Direction: SortAsc}) {
		t.Fatalf("first toggle = %+v", s)
	}
	s = s.Toggle("cargo_name")
	if s.Direction != SortDesc {
		t.Fatalf("second toggle = %+v", s)
	}
	s = s.Toggle("cargo_name")
	if s.Active() || s.Column != "" {
		t.Fatalf("third toggle = %+v, want unsorted", s)
	}

	s = SortState{Column: "cargo_name", Direction: SortDesc}.Toggle("total_weight")
	if s != (SortState{Column: "total_weight", Direction: SortAsc}) {
		t.Errorf("switching column = %+v, want total_weight asc", s)
	}
}

func TestParseSortDirection(t *testing.T) {
	for in, want := range map[string]SortDirection{"asc": SortAsc, " DESC ": SortDesc, "": SortNone, "up": SortNone} {
		if got := ParseSortDirection(in); got != want {
			t.Errorf("ParseSortDirection(%q) = %q, want %q", in, got, want)
		}
	}
}
