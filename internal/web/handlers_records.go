package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

// handleListRecords returns one filtered, sorted page of records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	params, err := parseQuery(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, core.Query(s.store.GetAll(), params))
}

// handleGetRecord returns a single record by id.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Get(id)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrRecordNotFound, id))
		return
	}
	render.JSON(w, r, rec)
}

// handleLookup answers the direct store lookups:
//
//	?type=weight                       records flagged with an anomaly type
//	?from=2024-01-01&to=31.01.2024     records transmitted in a date range
//	?<field>=<value>...                records matching every criterion
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if t := q.Get("type"); t != "" {
		at := core.AnomalyType(t)
		if !at.Valid() {
			s.respondError(w, r, badParam("type", t))
			return
		}
		render.JSON(w, r, s.store.ByAnomalyType(at))
		return
	}

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, ok := parseDay(from)
		if !ok {
			s.respondError(w, r, badParam("from", from))
			return
		}
		end, ok := parseDay(to)
		if !ok {
			s.respondError(w, r, badParam("to", to))
			return
		}
		// to is inclusive of the whole day
		render.JSON(w, r, s.store.ByDateRange(start, end.Add(24*time.Hour-time.Nanosecond)))
		return
	}

	criteria := make(map[string]string, len(q))
	for k := range q {
		criteria[k] = q.Get(k)
	}
	render.JSON(w, r, s.store.Find(criteria))
}

// parseDay accepts YYYY-MM-DD or the export's DD.MM.YYYY.
func parseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return core.ParseDate(s)
}

// handleClearRecords removes every record and the persisted snapshot.
func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	n := s.importer.Clear(r.Context())
	render.JSON(w, r, map[string]int{"cleared": n})
}

// handleStats returns anomaly counts per probability level.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.store.AnomalyStats())
}

// handleExport downloads the collection as ';'-delimited CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("transit_records_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write([]byte(s.store.ExportCSV()))
}

// storageResponse reports what is persisted and how much budget it uses.
type storageResponse struct {
	Storage    store.StorageInfo  `json:"storage"`
	LastImport *store.ImportInfo  `json:"lastImport"`
	Records    int                `json:"records"`
	Version    uint64             `json:"version"`
	LastKind   store.SnapshotKind `json:"lastSnapshotKind"`
}

// handleStorage returns snapshot size and budget usage plus the last
// import's count and timestamp.
func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	resp := storageResponse{
		Storage:  s.store.StorageInfo(r.Context()),
		Records:  s.store.Count(),
		Version:  s.store.Version(),
		LastKind: s.store.LastSnapshotKind(),
	}
	if info, ok := s.store.LastImportInfo(r.Context()); ok {
		resp.LastImport = &info
	}
	render.JSON(w, r, resp)
}

// statusResponse is the import queue and stream status.
type statusResponse struct {
	Imports     core.LimiterStatus `json:"imports"`
	Records     int                `json:"records"`
	Version     uint64             `json:"version"`
	Subscribers int                `json:"subscribers"`
}

// handleStatus returns the import limiter state for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{
		Imports:     s.importer.Limiter().Status(),
		Records:     s.store.Count(),
		Version:     s.store.Version(),
		Subscribers: s.hub.Subscribers(),
	})
}

// handleAuditLog returns audit entries, newest first.
// Query: action=import|import_failed|clear, limit.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter := importer.AuditFilter{
		Action: importer.AuditAction(r.URL.Query().Get("action")),
		Limit:  parseIntParam(r, "limit", 100),
	}
	render.JSON(w, r, s.importer.Audit().Entries(filter))
}
