package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/logging"
	"github.com/JonMunkholm/transitwatch/internal/storage"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

type flakyBackend struct {
	*storage.Memory
	fail atomic.Bool
}

func (b *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if b.fail.Load() {
		return errors.New("disk full")
	}
	return b.Memory.Set(ctx, key, value)
}

func TestNeedsPersist(t *testing.T) {
	tests := []struct {
		kind    store.SnapshotKind
		records int
		want    bool
	}{
		{store.KindNone, 0, false},
		{store.KindNone, 5, true},
		{store.KindEmergency, 5, true},
		{store.KindEmergency, 0, false},
		{store.KindFull, 5, false},
		{store.KindCompact, 100, false},
		{store.KindStatsOnly, 5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsPersist(tt.kind, tt.records), "%s/%d", tt.kind, tt.records)
	}
}

func TestRunPersist_RetriesAfterFailure(t *testing.T) {
	backend := &flakyBackend{Memory: storage.NewMemory()}
	st := store.New(backend, store.Options{Logger: logging.Discard()})
	s, err := New(st, "@every 1h", logging.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	backend.fail.Store(true)
	st.Replace(ctx, []core.Record{{ID: "a"}, {ID: "b"}})
	require.Equal(t, store.KindNone, st.LastSnapshotKind())

	// Still failing: stays unpersisted.
	assert.Equal(t, store.KindNone, s.RunPersist(ctx))

	backend.fail.Store(false)
	assert.Equal(t, store.KindFull, s.RunPersist(ctx))

	raw, err := backend.Get(ctx, store.DefaultKey)
	require.NoError(t, err)
	snap, err := store.DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count())

	// Healthy state is left alone.
	assert.Equal(t, store.KindFull, s.RunPersist(ctx))
}

func TestNew_InvalidSpec(t *testing.T) {
	st := store.New(storage.NewMemory(), store.Options{Logger: logging.Discard()})
	_, err := New(st, "every tuesday", logging.Discard())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	st := store.New(storage.NewMemory(), store.Options{Logger: logging.Discard()})
	s, err := New(st, "", logging.Discard())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
