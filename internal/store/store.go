// Package store holds the imported record collection.
//
// A Store is the single writable source of truth for one process. It owns the
// in-memory collection, persists a snapshot after every mutation, and
// notifies subscribers synchronously in registration order.
//
// Persistence never fails loudly. When the full collection does not fit the
// storage budget the store degrades to a compact snapshot (stats plus a
// sample), then to stats only, then to an emergency record of the failure;
// each step is reported as an Event. The in-memory collection stays intact
// regardless of what was persisted.
package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/storage"
)

// Defaults applied to zero Options fields.
const (
	DefaultKey              = "gray_transit_imported_data"
	DefaultBudgetBytes      = 5 * 1024 * 1024
	DefaultCompactThreshold = 10_000
	DefaultSampleSize       = 100
	DefaultIOTimeout        = 10 * time.Second
)

// Options configures a Store.
type Options struct {
	Key              string
	BudgetBytes      int
	CompactThreshold int
	SampleSize       int
	IOTimeout        time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.BudgetBytes <= 0 {
		o.BudgetBytes = DefaultBudgetBytes
	}
	if o.CompactThreshold <= 0 {
		o.CompactThreshold = DefaultCompactThreshold
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = DefaultIOTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Subscriber receives the full collection after every mutation. It runs on
// the mutating goroutine and must not mutate the store itself.
type Subscriber func(records []core.Record)

type subscription struct {
	fn Subscriber
}

// AppendResult reports how many incoming records were kept.
type AppendResult struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// Store is the record collection with persistence and change notification.
type Store struct {
	backend storage.Backend
	opts    Options
	log     *slog.Logger

	loadOnce sync.Once

	// writeMu serializes mutations end to end (mutate, persist, notify).
	writeMu sync.Mutex

	// mu guards records and lastKind.
	mu       sync.RWMutex
	records  []core.Record
	lastKind SnapshotKind

	version atomic.Uint64

	subMu       sync.Mutex
	subscribers []*subscription
	listeners   []func(Event)
}

// New creates a store over backend. Nothing is read until first access.
func New(backend storage.Backend, opts Options) *Store {
	opts.applyDefaults()
	return &Store{
		backend:  backend,
		opts:     opts,
		log:      opts.Logger.With("component", "store", "key", opts.Key),
		records:  []core.Record{},
		lastKind: KindNone,
	}
}

// Load reads the persisted snapshot now instead of on first access.
// Calling it more than once has no further effect.
func (s *Store) Load(ctx context.Context) {
	s.loadOnce.Do(func() { s.load(ctx) })
}

func (s *Store) ensureLoaded() {
	s.loadOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.IOTimeout)
		defer cancel()
		s.load(ctx)
	})
}

// GetAll returns a copy of the current collection.
func (s *Store) GetAll() []core.Record {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Count returns the number of records in memory.
func (s *Store) Count() int {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Version returns the mutation counter. It increases by one per mutation and
// lets callers detect that the collection changed between two reads.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (core.Record, bool) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == id {
			return s.records[i], true
		}
	}
	return core.Record{}, false
}

// Replace installs records as the new collection. A failed persist does not
// roll the collection back.
func (s *Store) Replace(ctx context.Context, records []core.Record) {
	s.mutate(ctx, "replace", func(current []core.Record) []core.Record {
		return slices.Clone(records)
	})
}

// Append adds the records whose id is not already present. Duplicates,
// including repeats within records, are dropped silently.
func (s *Store) Append(ctx context.Context, records []core.Record) AppendResult {
	var res AppendResult
	s.mutate(ctx, "append", func(current []core.Record) []core.Record {
		seen := make(map[string]struct{}, len(current)+len(records))
		for i := range current {
			seen[current[i].ID] = struct{}{}
		}
		next := slices.Clip(current)
		for _, r := range records {
			if _, dup := seen[r.ID]; dup {
				res.Duplicates++
				continue
			}
			seen[r.ID] = struct{}{}
			next = append(next, r)
			res.Added++
		}
		return next
	})
	return res
}

// Clear empties the collection.
func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, "clear", func([]core.Record) []core.Record {
		return []core.Record{}
	})
}

// mutate applies fn, persists, and notifies, all under writeMu.
func (s *Store) mutate(ctx context.Context, op string, fn func(current []core.Record) []core.Record) {
	s.ensureLoaded()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := fn(s.records)
	s.records = next
	s.mu.Unlock()
	v := s.version.Add(1)

	kind := s.persist(ctx, next)
	s.log.Info("store mutated", "op", op, "count", len(next), "version", v, "snapshot", kind)

	s.notify(next)
}

// Persist writes the current collection again. It is used to retry after a
// degraded write, e.g. once the budget or backend recovers.
func (s *Store) Persist(ctx context.Context) SnapshotKind {
	s.ensureLoaded()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()
	return s.persist(ctx, records)
}

// LastSnapshotKind returns the shape of the last snapshot this process wrote
// or loaded.
func (s *Store) LastSnapshotKind() SnapshotKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKind
}

// Subscribe registers fn for change notifications and returns a function that
// removes it. Registering the same function twice yields two calls.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			s.subscribers = slices.DeleteFunc(s.subscribers, func(x *subscription) bool { return x == sub })
		})
	}
}

// OnEvent registers a listener for persistence events.
func (s *Store) OnEvent(fn func(Event)) {
	s.subMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.subMu.Unlock()
}

func (s *Store) notify(records []core.Record) {
	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()

	if len(subs) == 0 {
		return
	}
	view := slices.Clone(records)
	for _, sub := range subs {
		sub.fn(view)
	}
}

func (s *Store) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = s.opts.Now()
	}
	s.subMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}

func (s *Store) setLastKind(k SnapshotKind) {
	s.mu.Lock()
	s.lastKind = k
	s.mu.Unlock()
}

func (s *Store) timestamp() string {
	return s.opts.Now().UTC().Format(core.ISOLayout)
}

// persist writes the best snapshot that fits the budget. Must hold writeMu.
func (s *Store) persist(ctx context.Context, records []core.Record) SnapshotKind {
	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()

	ts := s.timestamp()
	total := len(records)

	err := func() error {
		full, err := encodeFull(records, ts)
		if err != nil {
			return err
		}
		if len(full) <= s.opts.BudgetBytes {
			if err := s.backend.Set(ctx, s.opts.Key, full); err != nil {
				return err
			}
			s.setLastKind(KindFull)
			s.emit(Event{Type: EventSaved, Kind: KindFull, TotalRecords: total, Bytes: len(full)})
			return nil
		}

		if total > s.opts.CompactThreshold {
			compact, samples, err := encodeCompact(records, s.opts.SampleSize, ts)
			if err != nil {
				return err
			}
			if len(compact) <= s.opts.BudgetBytes {
				if err := s.backend.Set(ctx, s.opts.Key, compact); err != nil {
					return err
				}
				s.setLastKind(KindCompact)
				s.log.Warn("snapshot compressed", "total", total, "samples", samples, "bytes", len(compact))
				s.emit(Event{Type: EventCompressed, Kind: KindCompact, TotalRecords: total, SavedSamples: samples, Bytes: len(compact)})
				return nil
			}
		}

		statsOnly, err := encodeStatsOnly(core.Tally(records), ts)
		if err != nil {
			return err
		}
		if err := s.backend.Set(ctx, s.opts.Key, statsOnly); err != nil {
			return err
		}
		s.setLastKind(KindStatsOnly)
		s.log.Warn("snapshot too large, stored stats only", "total", total)
		s.emit(Event{Type: EventStatsOnly, Kind: KindStatsOnly, TotalRecords: total, Bytes: len(statsOnly)})
		return nil
	}()
	if err == nil {
		return s.LastSnapshotKind()
	}

	s.log.Error("snapshot write failed", "total", total, "error", err)

	emergency, encErr := encodeEmergency(core.Tally(records), err, ts)
	if encErr == nil {
		encErr = s.backend.Set(ctx, s.opts.Key, emergency)
	}
	if encErr == nil {
		s.setLastKind(KindEmergency)
		s.emit(Event{Type: EventEmergency, Kind: KindEmergency, TotalRecords: total, Error: err.Error()})
		return KindEmergency
	}

	s.log.Error("emergency snapshot failed, removing persisted value", "error", encErr)
	if rmErr := s.backend.Remove(ctx, s.opts.Key); rmErr != nil {
		s.log.Error("remove snapshot failed", "error", rmErr)
	}
	s.setLastKind(KindNone)
	s.emit(Event{Type: EventCleared, Kind: KindNone, TotalRecords: total, Error: errors.Join(err, encErr).Error()})
	return KindNone
}

// load populates the collection from the persisted snapshot.
func (s *Store) load(ctx context.Context) {
	raw, err := s.backend.Get(ctx, s.opts.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Error("snapshot read failed", "error", err)
		return
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		s.log.Error("snapshot unreadable, removing", "error", err)
		s.dropCorrupt(ctx, err.Error())
		return
	}

	kind := snap.Kind()
	switch kind {
	case KindEmergency, KindStatsOnly:
		s.log.Warn("snapshot holds stats only, records unavailable", "kind", kind, "total", snap.TotalCount)
		s.setLastKind(kind)
		s.emit(Event{Type: EventLoadedDegraded, Kind: kind, TotalRecords: snap.TotalCount, Error: snap.Error})
	case KindCompact:
		samples := s.usable(snap.SampleData)
		s.mu.Lock()
		s.records = samples
		s.lastKind = kind
		s.mu.Unlock()
		s.log.Warn("loaded compact snapshot", "total", snap.TotalCount, "samples", len(samples))
		s.emit(Event{Type: EventLoadedCompact, Kind: kind, TotalRecords: snap.TotalCount, SavedSamples: len(samples)})
	case KindFull:
		records := s.usable(snap.Data)
		s.mu.Lock()
		s.records = records
		s.lastKind = kind
		s.mu.Unlock()
		s.log.Info("loaded snapshot", "count", len(records))
	default:
		s.log.Warn("unknown snapshot shape, removing")
		s.dropCorrupt(ctx, "unknown snapshot shape")
	}
}

// usable drops loaded records that cannot be addressed: no id, or neither
// an order number nor a message code. Field-level problems such as a raw
// date are kept, as the parser keeps them too.
func (s *Store) usable(records []core.Record) []core.Record {
	out := make([]core.Record, 0, len(records))
	var dropped int
	for _, r := range records {
		if err := identityError(core.ValidateRecord(r)); err != nil {
			dropped++
			s.log.Debug("skip stored record", "id", r.ID, "line", r.SourceLine, "error", err)
			continue
		}
		out = append(out, r)
	}
	if dropped > 0 {
		s.log.Warn("dropped invalid records from snapshot", "dropped", dropped, "kept", len(out))
	}
	return out
}

func identityError(errs []core.ValidationError) error {
	for _, e := range errs {
		if e.Field == "" || e.Field == core.KeyID {
			return e
		}
	}
	return nil
}

func (s *Store) dropCorrupt(ctx context.Context, reason string) {
	if err := s.backend.Remove(ctx, s.opts.Key); err != nil {
		s.log.Error("remove unreadable snapshot failed", "error", err)
	}
	s.emit(Event{Type: EventLoadedCorrupt, Kind: KindUnknown, Error: reason})
}

