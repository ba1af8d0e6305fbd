package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/storage"
)

// AnomalyStats tallies the in-memory collection by anomaly probability.
func (s *Store) AnomalyStats() core.AnomalyStats {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Tally(s.records)
}

// Find returns records whose values equal every criterion. Values are
// compared in their string form, so "12.5" matches a numeric 12.5.
func (s *Store) Find(criteria map[string]string) []core.Record {
	return s.filter(func(r *core.Record) bool {
		for name, want := range criteria {
			if _, ok := r.Get(name); !ok || r.GetString(name) != want {
				return false
			}
		}
		return true
	})
}

// ByAnomalyType returns records flagged with t.
func (s *Store) ByAnomalyType(t core.AnomalyType) []core.Record {
	return s.filter(func(r *core.Record) bool { return r.HasType(t) })
}

// ByDateRange returns records whose transmission date falls within
// [start, end]. Records without a parseable date are excluded.
func (s *Store) ByDateRange(start, end time.Time) []core.Record {
	return s.filter(func(r *core.Record) bool {
		ts, ok := core.ParseTimestamp(r.Text(core.ColTransmissionDate))
		if !ok {
			return false
		}
		return !ts.Before(start) && !ts.After(end)
	})
}

func (s *Store) filter(keep func(*core.Record) bool) []core.Record {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Record{}
	for i := range s.records {
		if keep(&s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out
}

// ExportCSV renders the collection as ';'-delimited text. The header row is
// the union of record keys in first-appearance order; values containing the
// delimiter are quoted. An empty collection exports as "".
func (s *Store) ExportCSV() string {
	records := s.GetAll()
	if len(records) == 0 {
		return ""
	}

	var headers []string
	seen := make(map[string]struct{})
	for i := range records {
		for _, k := range records[i].Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			headers = append(headers, k)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ";"))
	for i := range records {
		b.WriteByte('\n')
		for j, h := range headers {
			if j > 0 {
				b.WriteByte(';')
			}
			v := records[i].GetString(h)
			if strings.Contains(v, ";") {
				b.WriteByte('"')
				b.WriteString(v)
				b.WriteByte('"')
				continue
			}
			b.WriteString(v)
		}
	}
	return b.String()
}

// ImportInfo describes the persisted snapshot.
type ImportInfo struct {
	Count     int          `json:"count"`
	Timestamp string       `json:"timestamp"`
	Type      SnapshotKind `json:"type"`
}

// LastImportInfo reads the persisted snapshot. The second result is false
// when nothing is persisted or the value is unreadable.
func (s *Store) LastImportInfo(ctx context.Context) (ImportInfo, bool) {
	raw, err := s.backend.Get(ctx, s.opts.Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("read snapshot for import info failed", "error", err)
		}
		return ImportInfo{}, false
	}
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		return ImportInfo{}, false
	}
	kind := snap.Kind()
	if kind == KindUnknown {
		kind = KindFull
	}
	return ImportInfo{Count: snap.Count(), Timestamp: snap.Timestamp, Type: kind}, true
}

// StorageInfo reports budget usage of the persisted snapshot.
type StorageInfo struct {
	Size         int          `json:"size"`
	MaxSize      int          `json:"maxSize"`
	Usage        float64      `json:"usage"`
	CanStoreFull bool         `json:"canStoreFull"`
	DataType     SnapshotKind `json:"dataType"`
}

// StorageInfo measures the persisted snapshot against the budget.
// CanStoreFull reports whether the current in-memory collection would fit
// as a full snapshot.
func (s *Store) StorageInfo(ctx context.Context) StorageInfo {
	info := StorageInfo{MaxSize: s.opts.BudgetBytes, DataType: KindNone}

	raw, err := s.backend.Get(ctx, s.opts.Key)
	switch {
	case err == nil:
		info.Size = len(raw)
		if snap, decErr := DecodeSnapshot(raw); decErr == nil {
			if k := snap.Kind(); k != KindUnknown {
				info.DataType = k
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.log.Warn("read snapshot for storage info failed", "error", err)
	}

	info.Usage = math.Round(float64(info.Size)/float64(info.MaxSize)*100*100) / 100

	full, err := encodeFull(s.GetAll(), s.timestamp())
	info.CanStoreFull = err == nil && len(full) <= s.opts.BudgetBytes
	return info
}
