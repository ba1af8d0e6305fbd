package store

import (
	"encoding/json"

	"github.com/JonMunkholm/transitwatch/internal/core"
)

// SnapshotVersion is written into every persisted snapshot.
const SnapshotVersion = "1.0"

// SnapshotKind identifies the shape of a persisted snapshot.
type SnapshotKind string

const (
	KindNone      SnapshotKind = "none"
	KindFull      SnapshotKind = "full"
	KindCompact   SnapshotKind = "compact"
	KindStatsOnly SnapshotKind = "stats-only"
	KindEmergency SnapshotKind = "emergency"
	KindUnknown   SnapshotKind = "unknown"
)

// Degraded reports whether a snapshot of this kind lost records.
func (k SnapshotKind) Degraded() bool {
	switch k {
	case KindCompact, KindStatsOnly, KindEmergency:
		return true
	}
	return false
}

// Snapshot is the decoded form of any persisted shape. The boolean flags
// discriminate; with none set, a non-nil Data means a full snapshot.
type Snapshot struct {
	Version     string             `json:"version,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	IsCompact   bool               `json:"isCompact,omitempty"`
	IsStatsOnly bool               `json:"isStatsOnly,omitempty"`
	IsEmergency bool               `json:"isEmergency,omitempty"`
	Data        []core.Record      `json:"data,omitempty"`
	SampleData  []core.Record      `json:"sampleData,omitempty"`
	Stats       *core.AnomalyStats `json:"stats,omitempty"`
	TotalCount  int                `json:"totalCount,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Kind classifies the snapshot, checking the most degraded shape first.
func (s *Snapshot) Kind() SnapshotKind {
	switch {
	case s.IsEmergency:
		return KindEmergency
	case s.IsStatsOnly:
		return KindStatsOnly
	case s.IsCompact:
		return KindCompact
	case s.Data != nil:
		return KindFull
	default:
		return KindUnknown
	}
}

// Count is the number of records the snapshot describes, which for degraded
// shapes exceeds the records it carries.
func (s *Snapshot) Count() int {
	if s.Kind() == KindFull {
		return len(s.Data)
	}
	return s.TotalCount
}

// DecodeSnapshot parses a persisted value.
func DecodeSnapshot(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// The encode-side shapes keep required keys even when empty; a full
// snapshot of zero records still carries "data": [].

type fullSnapshot struct {
	Data      []core.Record `json:"data"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
}

type compactSnapshot struct {
	IsCompact  bool              `json:"isCompact"`
	Stats      core.AnomalyStats `json:"stats"`
	SampleData []core.Record     `json:"sampleData"`
	TotalCount int               `json:"totalCount"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
}

type statsOnlySnapshot struct {
	IsStatsOnly bool              `json:"isStatsOnly"`
	Stats       core.AnomalyStats `json:"stats"`
	TotalCount  int               `json:"totalCount"`
	Timestamp   string            `json:"timestamp"`
	Version     string            `json:"version"`
}

type emergencySnapshot struct {
	IsEmergency bool              `json:"isEmergency"`
	Stats       core.AnomalyStats `json:"stats"`
	TotalCount  int               `json:"totalCount"`
	Timestamp   string            `json:"timestamp"`
	Version     string            `json:"version"`
	Error       string            `json:"error"`
}

func encodeFull(records []core.Record, ts string) ([]byte, error) {
	if records == nil {
		records = []core.Record{}
	}
	return json.Marshal(fullSnapshot{Data: records, Timestamp: ts, Version: SnapshotVersion})
}

func encodeCompact(records []core.Record, sampleSize int, ts string) ([]byte, int, error) {
	sample := records[:min(sampleSize, len(records))]
	raw, err := json.Marshal(compactSnapshot{
		IsCompact:  true,
		Stats:      core.Tally(records),
		SampleData: sample,
		TotalCount: len(records),
		Timestamp:  ts,
		Version:    SnapshotVersion,
	})
	return raw, len(sample), err
}

func encodeStatsOnly(stats core.AnomalyStats, ts string) ([]byte, error) {
	return json.Marshal(statsOnlySnapshot{
		IsStatsOnly: true,
		Stats:       stats,
		TotalCount:  stats.Total,
		Timestamp:   ts,
		Version:     SnapshotVersion,
	})
}

func encodeEmergency(stats core.AnomalyStats, cause error, ts string) ([]byte, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return json.Marshal(emergencySnapshot{
		IsEmergency: true,
		Stats:       stats,
		TotalCount:  stats.Total,
		Timestamp:   ts,
		Version:     SnapshotVersion,
		Error:       msg,
	})
}
