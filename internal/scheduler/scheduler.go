// Package scheduler runs background maintenance for the record store.
//
// The persist job retries a snapshot write after the last one failed. It
// runs on a cron schedule, does nothing while the persisted state is
// healthy, and logs but never fails the process when a retry fails again.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/transitwatch/internal/store"
)

// DefaultSpec runs the persist job every five minutes.
const DefaultSpec = "@every 5m"

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron    *cron.Cron
	store   *store.Store
	log     *slog.Logger
	timeout time.Duration
}

// New creates a scheduler running the persist job on spec, a standard
// five-field cron expression or a descriptor such as "@every 5m".
func New(st *store.Store, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:   st,
		log:     logger.With("component", "scheduler"),
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunPersist(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule persist job %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops the runner and waits for a running job to finish or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", "error", ctx.Err())
	}
}

// NeedsPersist reports whether the last write failed while records are
// held in memory. Snapshots degraded at load time are not retried: the
// process only holds samples and would overwrite the better copy.
func NeedsPersist(kind store.SnapshotKind, records int) bool {
	if records == 0 {
		return false
	}
	return kind == store.KindEmergency || kind == store.KindNone
}

// RunPersist performs one retry cycle and returns the resulting kind, or
// the unchanged kind when nothing needed doing.
func (s *Scheduler) RunPersist(ctx context.Context) store.SnapshotKind {
	kind := s.store.LastSnapshotKind()
	count := s.store.Count()
	if !NeedsPersist(kind, count) {
		s.log.Debug("persist job skipped", "kind", kind, "records", count)
		return kind
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	got := s.store.Persist(ctx)
	log := s.log.With(
		"previous_kind", kind,
		"kind", got,
		"records", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if NeedsPersist(got, count) {
		log.Warn("persist retry failed")
	} else {
		log.Info("persist retry succeeded")
	}
	return got
}
