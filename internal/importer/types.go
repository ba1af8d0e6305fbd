package importer

import (
	"io"
	"strings"

	"github.com/JonMunkholm/transitwatch/internal/core"
)

// Phase indicates the current stage of import processing.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseReading   Phase = "reading"
	PhaseParsing   Phase = "parsing"
	PhaseStoring   Phase = "storing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Done reports whether the phase is terminal.
func (p Phase) Done() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// Progress represents the current state of an import.
type Progress struct {
	ImportID   string          `json:"importId"`
	Mode       core.ImportMode `json:"mode"`
	Phase      Phase           `json:"phase"`
	FileName   string          `json:"fileName,omitempty"`
	TotalRows  int             `json:"totalRows"`
	ValidRows  int             `json:"validRows"`
	BytesRead  int64           `json:"bytesRead"`
	BytesTotal int64           `json:"bytesTotal"`
	Error      string          `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100). Reading counts for
// the first half; parsing and storing complete the rest.
func (p Progress) Percent() int {
	switch p.Phase {
	case PhaseComplete:
		return 100
	case PhaseParsing:
		return 60
	case PhaseStoring:
		return 80
	case PhaseReading:
		if p.BytesTotal > 0 {
			return int(p.BytesRead * 50 / p.BytesTotal)
		}
	}
	return 0
}

// Request is one file submitted for import.
type Request struct {
	FileName    string
	ContentType string
	Size        int64 // declared size in bytes
	Body        io.Reader
	Mode        core.ImportMode
}

// RejectedError reports the file-level checks a request failed. It matches
// core.ErrFileRejected, and core.ErrInputTooLarge when a size limit was hit.
type RejectedError struct {
	Problems []string
}

func (e *RejectedError) Error() string {
	return "file validation failed: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is match the sentinels that describe this rejection.
func (e *RejectedError) Is(target error) bool {
	switch target {
	case core.ErrFileRejected:
		return true
	case core.ErrInputTooLarge:
		for _, p := range e.Problems {
			if strings.Contains(p, "must not exceed") {
				return true
			}
		}
	}
	return false
}
