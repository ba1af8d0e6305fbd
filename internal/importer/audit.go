package importer

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/transitwatch/internal/core"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImport       AuditAction = "import"
	ActionImportFailed AuditAction = "import_failed"
	ActionClear        AuditAction = "clear"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string          `json:"id"`
	Action       AuditAction     `json:"action"`
	Severity     AuditSeverity   `json:"severity"`
	ImportID     string          `json:"importId,omitempty"`
	Mode         core.ImportMode `json:"mode,omitempty"`
	FileName     string          `json:"fileName,omitempty"`
	RowsAffected int             `json:"rowsAffected"`
	Reason       string          `json:"reason,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	Actor        string          `json:"actor,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// determineSeverity returns the appropriate severity for an action.
// A replace import discards the previous collection, so it ranks with clear.
func determineSeverity(action AuditAction, mode core.ImportMode) AuditSeverity {
	switch action {
	case ActionClear:
		return SeverityCritical
	case ActionImport:
		if mode == core.ImportReplace {
			return SeverityHigh
		}
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DefaultAuditSize is the number of entries kept when no size is configured.
const DefaultAuditSize = 200

// AuditLog keeps the most recent entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
	now     func() time.Time
}

// NewAuditLog creates a log holding at most max entries.
func NewAuditLog(max int) *AuditLog {
	if max <= 0 {
		max = DefaultAuditSize
	}
	return &AuditLog{max: max, now: time.Now}
}

// Log fills in id, severity, time, and request metadata, then stores e.
func (l *AuditLog) Log(ctx context.Context, e AuditEntry) AuditEntry {
	meta := RequestMetaFrom(ctx)
	e.ID = uuid.NewString()
	e.Severity = determineSeverity(e.Action, e.Mode)
	e.CreatedAt = l.now()
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	e.Actor = meta.Actor

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = slices.Delete(l.entries, 0, over)
	}
	return e
}

// AuditFilter narrows Entries.
type AuditFilter struct {
	Action AuditAction // empty for all
	Limit  int         // 0 for all
}

// Entries returns matching entries, newest first.
func (l *AuditLog) Entries(f AuditFilter) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]AuditEntry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		if f.Action != "" && l.entries[i].Action != f.Action {
			continue
		}
		out = append(out, l.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}
