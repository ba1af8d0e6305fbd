package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/logging"
	"github.com/JonMunkholm/transitwatch/internal/metrics"
	"github.com/JonMunkholm/transitwatch/internal/storage"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish(Message{Type: TypeRecordsChanged, Records: 3})
	assert.Equal(t, 3, receive(t, a).Records)
	got := receive(t, b)
	assert.Equal(t, 3, got.Records)
	assert.False(t, got.Time.IsZero())

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish(Message{Records: 1})
	h.Publish(Message{Records: 2})

	assert.Equal(t, 1, receive(t, ch).Records)
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %+v", m)
	default:
	}
}

func TestHub_CloseClosesSubscribers(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	ch, cancel := h.Subscribe(1)
	require.NoError(t, h.Close())

	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := h.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	h.Publish(Message{})
}

func TestHub_AttachStore(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	st := store.New(storage.NewMemory(), store.Options{Logger: logging.Discard()})
	detach := h.Attach(st)
	defer detach()

	ch, cancel := h.Subscribe(8)
	defer cancel()

	st.Replace(context.Background(), []core.Record{{ID: "a"}, {ID: "b"}})

	// Persistence runs before subscribers are notified.
	first := receive(t, ch)
	assert.Equal(t, TypeStoreEvent, first.Type)
	require.NotNil(t, first.Event)
	assert.Equal(t, store.EventSaved, first.Event.Type)
	assert.Equal(t, "data-storage-saved", first.Name())

	second := receive(t, ch)
	assert.Equal(t, TypeRecordsChanged, second.Type)
	assert.Equal(t, 2, second.Records)
	assert.Equal(t, st.Version(), second.Version)
	assert.Equal(t, "records-changed", second.Name())
}

type fakeSink struct {
	mu     sync.Mutex
	got    []Message
	fail   bool
	closed bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Publish(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, m)
	if f.fail {
		return errors.New("broker down")
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestHub_SinkDelivery(t *testing.T) {
	mc := metrics.NewCollector("tw")
	h := NewHub(mc, logging.Discard())
	ok := &fakeSink{}
	bad := &fakeSink{fail: true}
	h.AddSink(ok)
	h.AddSink(bad)

	h.Publish(Message{Type: TypeRecordsChanged, Records: 1})
	h.Publish(Message{Type: TypeRecordsChanged, Records: 2})
	require.NoError(t, h.Close())

	assert.Len(t, ok.got, 2)
	assert.Len(t, bad.got, 2)
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.SinkPublishTotal.WithLabelValues("fake", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.SinkPublishTotal.WithLabelValues("fake", "error")))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	ev := store.Event{Type: store.EventCompressed, Kind: store.KindCompact, TotalRecords: 15000, SavedSamples: 100}
	msg := Message{Type: TypeStoreEvent, Event: &ev, Records: 15000, Version: 7, Time: time.Unix(0, 0).UTC()}
	require.NoError(t, sink.Publish(context.Background(), msg))

	require.Len(t, w.msgs, 1)
	km := w.msgs[0]
	assert.Equal(t, "data-storage-compressed", string(km.Key))
	require.Len(t, km.Headers, 1)
	assert.Equal(t, "7", string(km.Headers[0].Value))

	var decoded Message
	require.NoError(t, json.Unmarshal(km.Value, &decoded))
	assert.Equal(t, 100, decoded.Event.SavedSamples)
	assert.Equal(t, store.KindCompact, decoded.Event.Kind)

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, sink.Publish(context.Background(), msg), "leader not available")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
	assert.Equal(t, "kafka", sink.Name())
}

func TestNewKafkaSink_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	s, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
