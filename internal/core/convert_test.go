package core

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		// Valid: plain and decimal
		{name: "integer", input: "123", want: 123},
		{name: "dot decimal", input: "12.5", want: 12.5},
		{name: "comma decimal", input: "12,5", want: 12.5},
		{name: "negative", input: "-7,25", want: -7.25},

		// Valid: export quirks
		{name: "space thousands separator", input: "1 234,5", want: 1234.5},
		{name: "non-breaking space", input: "1 000", want: 1000},
		{name: "surrounding whitespace", input: "  42  ", want: 42},
		{name: "trailing unit", input: "68,2т", want: 68.2},
		{name: "only first comma is decimal", input: "1,2,3", want: 1.2},

		// Invalid: coerced to zero
		{name: "empty", input: "", want: 0},
		{name: "whitespace only", input: "   ", want: 0},
		{name: "letters", input: "oops", want: 0},
		{name: "leading letters", input: "abc12", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseNumber(tt.input); got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Date Tests
// ----------------------------------------------------------------------------

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "date only", input: "15.01.2024", want: "2024-01-15T00:00:00.000Z"},
		{name: "date and time", input: "15.01.2024 13:45:09", want: "2024-01-15T13:45:09.000Z"},
		{name: "embedded in text", input: "от 01.02.2023", want: "2023-02-01T00:00:00.000Z"},
		{name: "overflowing day rolls over", input: "32.01.2024", want: "2024-02-01T00:00:00.000Z"},
		{name: "iso kept as is", input: "2024-01-15", want: "2024-01-15"},
		{name: "garbage kept as is", input: "не указано", want: "не указано"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceDate(tt.input); got != tt.want {
				t.Errorf("CoerceDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  string
		wantOK bool
	}{
		{name: "iso with millis", input: "2024-01-15T00:00:00.000Z", wantOK: true},
		{name: "rfc3339", input: "2024-01-15T00:00:00Z", wantOK: true},
		{name: "date only", input: "2024-01-15", wantOK: true},
		{name: "source format", input: "15.01.2024", wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "soon", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Cell and ID Tests
// ----------------------------------------------------------------------------

func TestSplitRow(t *testing.T) {
	got := SplitRow(` "A1" ; N1 ;"12,5";`)
	want := []string{"A1", "N1", "12,5", ""}

	if len(got) != len(want) {
		t.Fatalf("SplitRow() returned %d cells, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecordID(t *testing.T) {
	tests := []struct {
		name     string
		order    string
		date     string
		msg      string
		rowIndex int
		want     string
	}{
		{
			name:     "plain values",
			order:    "N1",
			date:     "",
			msg:      "A1",
			rowIndex: 1,
			want:     "N1__A1_1",
		},
		{
			name:     "iso date punctuation removed",
			order:    "N-42",
			date:     "2024-01-15T00:00:00.000Z",
			msg:      "410",
			rowIndex: 3,
			want:     "N42_20240115T000000000Z_410_3",
		},
		{
			name:     "cyrillic removed",
			order:    "Наряд7",
			date:     "",
			msg:      "",
			rowIndex: 2,
			want:     "7___2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordID(tt.order, tt.date, tt.msg, tt.rowIndex); got != tt.want {
				t.Errorf("RecordID() = %q, want %q", got, tt.want)
			}
		})
	}
}
