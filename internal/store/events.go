package store

import "time"

// EventType names a persistence or load outcome worth surfacing to users.
type EventType string

const (
	// EventSaved is emitted after a full snapshot is written.
	EventSaved EventType = "data-storage-saved"
	// EventCompressed is emitted when only a compact snapshot fit the budget.
	EventCompressed EventType = "data-storage-compressed"
	// EventStatsOnly is emitted when only aggregate stats were persisted.
	EventStatsOnly EventType = "data-storage-stats-only"
	// EventEmergency is emitted when a write failed and an emergency
	// snapshot was written instead.
	EventEmergency EventType = "data-storage-emergency"
	// EventCleared is emitted when no snapshot could be written and the
	// persisted value was removed.
	EventCleared EventType = "data-storage-cleared"
	// EventLoadedCompact is emitted when a load found a compact snapshot.
	EventLoadedCompact EventType = "data-loaded-compact"
	// EventLoadedDegraded is emitted when a load found a stats-only or
	// emergency snapshot.
	EventLoadedDegraded EventType = "data-loaded-degraded"
	// EventLoadedCorrupt is emitted when an unreadable snapshot was removed.
	EventLoadedCorrupt EventType = "data-loaded-corrupt"
)

// Event describes one persistence outcome.
type Event struct {
	Type         EventType    `json:"type"`
	Kind         SnapshotKind `json:"kind"`
	TotalRecords int          `json:"totalRecords"`
	SavedSamples int          `json:"savedSamples,omitempty"`
	Bytes        int          `json:"bytes,omitempty"`
	Error        string       `json:"error,omitempty"`
	Time         time.Time    `json:"time"`
}

// Degraded reports whether the event means some data is not durable.
func (e Event) Degraded() bool {
	return e.Type != EventSaved
}
