// Package storage provides key-value backends for persisted snapshots.
//
// A Backend stores opaque byte values under string keys. The record store
// writes one JSON snapshot per key; backends do not interpret the value.
//
// Backends:
//   - memory: process-local map, used by tests and ephemeral deployments
//   - file: one file per key, written atomically via temp file and rename
//   - postgres: kv_snapshots table via pgxpool
//   - redis: plain string keys via go-redis
//   - sqlite: kv_snapshots table via gorm
//
// Any backend can be wrapped with WithQuota to reject oversized values the
// way browser storage does.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded is returned by Set when the value exceeds the quota.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrUnknownBackend is returned by Open for an unsupported kind.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Backend is a minimal key-value store.
type Backend interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Kind names a backend implementation.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindRedis    Kind = "redis"
	KindSQLite   Kind = "sqlite"
)

// Options configures Open. Only the fields of the selected kind are read.
type Options struct {
	Kind          Kind
	Dir           string // file
	DatabaseURL   string // postgres
	RedisAddr     string // redis
	RedisPassword string
	RedisDB       int
	SQLitePath    string // sqlite
	MaxValueBytes int    // 0 disables the quota
}

// Open creates the backend selected by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Kind {
	case KindMemory, "":
		b = NewMemory()
	case KindFile:
		b, err = NewFile(opts.Dir)
	case KindPostgres:
		b, err = NewPostgres(ctx, opts.DatabaseURL)
	case KindRedis:
		b, err = NewRedis(ctx, RedisOptions{Addr: opts.RedisAddr, Password: opts.RedisPassword, DB: opts.RedisDB})
	case KindSQLite:
		b, err = NewSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", opts.Kind, err)
	}

	if opts.MaxValueBytes > 0 {
		b = WithQuota(b, opts.MaxValueBytes)
	}
	return b, nil
}

// quotaBackend rejects values larger than max.
type quotaBackend struct {
	Backend
	max int
}

// WithQuota wraps b so Set fails with ErrQuotaExceeded for values over max bytes.
func WithQuota(b Backend, max int) Backend {
	return &quotaBackend{Backend: b, max: max}
}

func (q *quotaBackend) Set(ctx context.Context, key string, value []byte) error {
	if len(value) > q.max {
		return fmt.Errorf("%w: %d bytes over limit of %d", ErrQuotaExceeded, len(value), q.max)
	}
	return q.Backend.Set(ctx, key, value)
}
