// Package importer runs CSV imports into the record store.
//
// An import validates the file, waits for a limiter slot, decodes the body,
// parses it, and replaces or extends the store. Imports can run synchronously
// (Import) or in the background with progress subscriptions (Start).
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/metrics"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

// DefaultImportTimeout is the maximum duration of a background import.
const DefaultImportTimeout = 10 * time.Minute

// DefaultMaxReportedErrors caps the row errors returned in a summary.
const DefaultMaxReportedErrors = 50

// ErrImportNotFound is returned for unknown or expired import ids.
var ErrImportNotFound = errors.New("import not found")

// Config configures a Service. Zero fields take defaults.
type Config struct {
	Limits            core.FileLimits
	MaxConcurrent     int
	AcquireTimeout    time.Duration
	ImportTimeout     time.Duration
	MaxReportedErrors int
	AuditSize         int

	Parser  *core.Parser
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Service provides the import business logic.
type Service struct {
	store   *store.Store
	limiter *core.ImportLimiter
	parser  *core.Parser
	metrics *metrics.Collector
	audit   *AuditLog
	log     *slog.Logger

	limits    core.FileLimits
	timeout   time.Duration
	maxErrors int

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID       string
	Mode     core.ImportMode
	FileName string
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu        sync.Mutex
	progress  Progress
	listeners []chan Progress
	summary   *core.ImportSummary
	err       error
}

// NewService creates a Service over st.
func NewService(st *store.Store, cfg Config) *Service {
	if cfg.Limits == (core.FileLimits{}) {
		cfg.Limits = core.DefaultFileLimits()
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	if cfg.MaxReportedErrors <= 0 {
		cfg.MaxReportedErrors = DefaultMaxReportedErrors
	}
	if cfg.Parser == nil {
		cfg.Parser = &core.Parser{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		store:     st,
		limiter:   core.NewImportLimiter(cfg.MaxConcurrent, cfg.AcquireTimeout),
		parser:    cfg.Parser,
		metrics:   cfg.Metrics,
		audit:     NewAuditLog(cfg.AuditSize),
		log:       cfg.Logger.With("component", "importer"),
		limits:    cfg.Limits,
		timeout:   cfg.ImportTimeout,
		maxErrors: cfg.MaxReportedErrors,
		imports:   make(map[string]*activeImport),
	}
}

// Store returns the store imports write to.
func (s *Service) Store() *store.Store { return s.store }

// Limiter returns the concurrency limiter, for status reporting.
func (s *Service) Limiter() *core.ImportLimiter { return s.limiter }

// Audit returns the audit trail.
func (s *Service) Audit() *AuditLog { return s.audit }

// Validate runs the file-level checks without importing.
func (s *Service) Validate(name, contentType string, size int64) []string {
	return s.limits.Validate(name, contentType, size)
}

// Import runs an import to completion on the calling goroutine.
//
// A file whose rows all fail returns the summary together with an error
// wrapping core.ErrNoValidRows; the store is left untouched.
func (s *Service) Import(ctx context.Context, req Request) (*core.ImportSummary, error) {
	imp, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.finish(imp)

	text, err := s.read(imp, req)
	if err != nil {
		s.fail(ctx, imp, err)
		return nil, err
	}
	return s.process(ctx, imp, text)
}

// Start validates and reads the file, then parses and stores it in the
// background. It returns the import id immediately after the read; use
// SubscribeProgress and Result to follow it.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	imp, err := s.begin(ctx, req)
	if err != nil {
		return "", err
	}

	text, err := s.read(imp, req)
	if err != nil {
		s.fail(ctx, imp, err)
		s.finish(imp)
		return "", err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	imp.Cancel = cancel

	s.mu.Lock()
	s.imports[imp.ID] = imp
	s.mu.Unlock()

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer cancel()
		defer s.finish(imp)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in import", "import_id", imp.ID, "panic", r)
				imp.setResult(nil, fmt.Errorf("internal error: %v", r))
				imp.update(func(p *Progress) {
					p.Phase = PhaseFailed
					p.Error = fmt.Sprintf("internal error: %v", r)
				})
			}
		}()
		s.process(runCtx, imp, text)
	}()

	return imp.ID, nil
}

// begin checks the request and takes a limiter slot. On success the caller
// owns the slot and must call finish.
func (s *Service) begin(ctx context.Context, req Request) (*activeImport, error) {
	mode, ok := core.ParseImportMode(string(req.Mode))
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidMode, req.Mode)
	}
	if req.Body == nil {
		return nil, core.ErrNoFile
	}
	if problems := s.limits.Validate(req.FileName, req.ContentType, req.Size); len(problems) > 0 {
		return nil, &RejectedError{Problems: problems}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	s.metrics.SetActiveImports(s.limiter.ActiveCount())

	id := uuid.New().String()
	return &activeImport{
		ID:       id,
		Mode:     mode,
		FileName: req.FileName,
		Cancel:   func() {},
		Done:     make(chan struct{}),
		progress: Progress{
			ImportID:   id,
			Mode:       mode,
			Phase:      PhaseStarting,
			FileName:   req.FileName,
			BytesTotal: req.Size,
		},
	}, nil
}

// finish releases the limiter slot and closes the import.
func (s *Service) finish(imp *activeImport) {
	s.limiter.Release()
	s.metrics.SetActiveImports(s.limiter.ActiveCount())
	imp.closeListeners()
	close(imp.Done)
	s.cleanup(imp.ID, 5*time.Minute)
}

func (s *Service) read(imp *activeImport, req Request) (string, error) {
	imp.update(func(p *Progress) { p.Phase = PhaseReading })

	text, err := core.ReadText(req.Body, core.TextOptions{
		MaxBytes: s.limits.MaxBytes,
		Total:    req.Size,
		OnProgress: func(read, total int64) {
			imp.update(func(p *Progress) { p.BytesRead = read })
		},
	})
	s.metrics.AddImportBytes(imp.snapshot().BytesRead)
	if err != nil {
		return "", err
	}
	if int64(len(text)) < s.limits.MinBytes {
		return "", &RejectedError{Problems: []string{core.MsgTooSmall}}
	}
	return text, nil
}

// process parses text and applies it to the store.
func (s *Service) process(ctx context.Context, imp *activeImport, text string) (*core.ImportSummary, error) {
	start := time.Now()

	imp.update(func(p *Progress) { p.Phase = PhaseParsing })
	res := s.parser.Parse(text)
	imp.update(func(p *Progress) {
		p.TotalRows = res.TotalRows
		p.ValidRows = res.ValidRows
	})

	summary := &core.ImportSummary{
		ImportID:   imp.ID,
		Mode:       imp.Mode,
		FileName:   imp.FileName,
		TotalRows:  res.TotalRows,
		ValidRows:  res.ValidRows,
		ErrorCount: len(res.Errors),
		Errors:     res.Errors[:min(len(res.Errors), s.maxErrors)],
		Warnings:   res.Warnings,
	}

	if res.ValidRows == 0 {
		err := core.NewUserError(fmt.Errorf("import %s: %w", imp.ID, core.ErrNoValidRows), summary.Errors...)
		s.complete(ctx, imp, summary, err, start)
		return summary, err
	}

	if err := ctx.Err(); err != nil {
		s.complete(ctx, imp, summary, err, start)
		return summary, err
	}

	imp.update(func(p *Progress) { p.Phase = PhaseStoring })
	switch imp.Mode {
	case core.ImportAppend:
		r := s.store.Append(ctx, res.Data)
		summary.Added, summary.Duplicates = r.Added, r.Duplicates
	default:
		s.store.Replace(ctx, res.Data)
		summary.Added = len(res.Data)
	}

	s.complete(ctx, imp, summary, nil, start)
	return summary, nil
}

// complete records the outcome in the summary, progress, audit log, and
// metrics.
func (s *Service) complete(ctx context.Context, imp *activeImport, summary *core.ImportSummary, err error, start time.Time) {
	elapsed := time.Since(start)
	summary.Duration = elapsed.Round(time.Millisecond).String()
	summary.FinishedAt = time.Now().UTC()
	imp.setResult(summary, err)

	rejected := summary.TotalRows - summary.ValidRows
	switch {
	case err == nil:
		imp.update(func(p *Progress) { p.Phase = PhaseComplete })
		s.metrics.RecordImport(string(imp.Mode), "success", elapsed, summary.ValidRows, rejected, summary.Duplicates)
		s.audit.Log(ctx, AuditEntry{
			Action:       ActionImport,
			ImportID:     imp.ID,
			Mode:         imp.Mode,
			FileName:     imp.FileName,
			RowsAffected: summary.Added,
		})
		s.log.Info("import complete",
			"import_id", imp.ID,
			"mode", imp.Mode,
			"file", imp.FileName,
			"total_rows", summary.TotalRows,
			"valid_rows", summary.ValidRows,
			"added", summary.Added,
			"duplicates", summary.Duplicates,
			"duration", summary.Duration,
		)
	case errors.Is(err, context.Canceled):
		imp.update(func(p *Progress) { p.Phase = PhaseCancelled })
		s.metrics.RecordImport(string(imp.Mode), "cancelled", elapsed, 0, 0, 0)
		s.log.Warn("import cancelled", "import_id", imp.ID)
	default:
		imp.update(func(p *Progress) {
			p.Phase = PhaseFailed
			p.Error = err.Error()
		})
		s.metrics.RecordImport(string(imp.Mode), "failed", elapsed, 0, rejected, 0)
		s.audit.Log(ctx, AuditEntry{
			Action:   ActionImportFailed,
			ImportID: imp.ID,
			Mode:     imp.Mode,
			FileName: imp.FileName,
			Reason:   err.Error(),
		})
		s.log.Warn("import failed", "import_id", imp.ID, "file", imp.FileName, "error", err)
	}
}

// fail records an import that ended before parsing.
func (s *Service) fail(ctx context.Context, imp *activeImport, err error) {
	imp.setResult(nil, err)
	imp.update(func(p *Progress) {
		p.Phase = PhaseFailed
		p.Error = err.Error()
	})
	s.metrics.RecordImport(string(imp.Mode), "failed", 0, 0, 0, 0)
	s.audit.Log(ctx, AuditEntry{
		Action:   ActionImportFailed,
		ImportID: imp.ID,
		Mode:     imp.Mode,
		FileName: imp.FileName,
		Reason:   err.Error(),
	})
	s.log.Warn("import failed", "import_id", imp.ID, "file", imp.FileName, "error", err)
}

// Clear empties the store and records who did it.
func (s *Service) Clear(ctx context.Context) int {
	n := s.store.Count()
	s.store.Clear(ctx)
	s.audit.Log(ctx, AuditEntry{Action: ActionClear, RowsAffected: n})
	s.log.Info("store cleared", "records", n)
	return n
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan Progress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)

	imp.mu.Lock()
	defer imp.mu.Unlock()
	// Send current progress immediately
	ch <- imp.progress
	if imp.progress.Phase.Done() {
		close(ch)
		return ch, nil
	}
	imp.listeners = append(imp.listeners, ch)
	return ch, nil
}

// Cancel cancels an in-progress import. An import that already reached the
// storing phase still completes.
func (s *Service) Cancel(importID string) error {
	imp, err := s.lookup(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// Result blocks until the import completes and returns its outcome.
func (s *Service) Result(ctx context.Context, importID string) (*core.ImportSummary, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	select {
	case <-imp.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.summary, imp.err
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(importID string) (Progress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return Progress{}, err
	}
	return imp.snapshot(), nil
}

func (s *Service) lookup(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}

// update applies fn to the progress and notifies listeners.
func (imp *activeImport) update(fn func(*Progress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.progress)
	for _, ch := range imp.listeners {
		select {
		case ch <- imp.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

func (imp *activeImport) snapshot() Progress {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.progress
}

func (imp *activeImport) setResult(summary *core.ImportSummary, err error) {
	imp.mu.Lock()
	imp.summary, imp.err = summary, err
	imp.mu.Unlock()
}

// closeListeners closes all listener channels.
func (imp *activeImport) closeListeners() {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	for _, ch := range imp.listeners {
		close(ch)
	}
	imp.listeners = nil
}
