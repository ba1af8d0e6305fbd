package core

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortDirection is the active direction of a sorted column.
type SortDirection string

const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection accepts "asc" and "desc"; anything else is unsorted.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAsc
	case "desc":
		return SortDesc
	default:
		return SortNone
	}
}

// SortState is the single active sort column of a table.
type SortState struct {
	Column    string        `json:"column,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// Active reports whether the state sorts anything.
func (s SortState) Active() bool {
	return s.Column != "" && s.Direction != SortNone
}

// Toggle returns the state after the user selects column. Repeated selection
// of one column cycles ascending, descending, unsorted; a different column
// starts ascending.
func (s SortState) Toggle(column string) SortState {
	if s.Column != column || s.Direction == SortNone {
		return SortState{Column: column, Direction: SortAsc}
	}
	if s.Direction == SortAsc {
		return SortState{Column: column, Direction: SortDesc}
	}
	return SortState{}
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Russian)
)

// compareText orders strings the way a Russian-locale user expects.
// collate.Collator is not safe for concurrent use.
func compareText(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// SortRecords sorts records in place by the given state. The sort is stable;
// an inactive state leaves the order unchanged.
func SortRecords(records []Record, s SortState) {
	if !s.Active() {
		return
	}
	sign := 1
	if s.Direction == SortDesc {
		sign = -1
	}
	compare := comparatorFor(s.Column, sign)
	slices.SortStableFunc(records, func(a, b Record) int {
		return compare(&a, &b)
	})
}

// comparatorFor returns the comparison for column; sign is -1 for
// descending. Unparseable dates sort last in both directions.
func comparatorFor(column string, sign int) func(a, b *Record) int {
	if column == KeyAnomalyProbability {
		return func(a, b *Record) int {
			return sign * cmp.Compare(a.AnomalyProbability.Priority(), b.AnomalyProbability.Priority())
		}
	}

	switch FieldTypeOf(column) {
	case FieldNumeric:
		return func(a, b *Record) int {
			return sign * cmp.Compare(numericKey(a, column), numericKey(b, column))
		}
	case FieldDate:
		return func(a, b *Record) int {
			ta, okA := ParseTimestamp(a.GetString(column))
			tb, okB := ParseTimestamp(b.GetString(column))
			switch {
			case !okA && !okB:
				return 0
			case !okA:
				return 1
			case !okB:
				return -1
			}
			return sign * ta.Compare(tb)
		}
	default:
		return func(a, b *Record) int {
			return sign * compareText(a.GetString(column), b.GetString(column))
		}
	}
}

func numericKey(r *Record, column string) float64 {
	v, _ := r.Get(column)
	return cast.ToFloat64(v)
}
