// Package notify fans store activity out to live clients and external sinks.
//
// The Hub turns store events and change notifications into Messages and
// delivers them to in-process subscribers (SSE and WebSocket handlers) and
// to registered Sinks (MQTT, Kafka). Delivery to subscribers never blocks
// the store: a subscriber whose buffer is full misses that message.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/metrics"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

// MessageType distinguishes hub messages.
type MessageType string

const (
	// TypeStoreEvent carries a persistence or load outcome.
	TypeStoreEvent MessageType = "store-event"
	// TypeRecordsChanged reports that the record collection changed.
	TypeRecordsChanged MessageType = "records-changed"
)

// Message is one notification delivered to subscribers and sinks.
type Message struct {
	Type    MessageType  `json:"type"`
	Event   *store.Event `json:"event,omitempty"`
	Records int          `json:"records"`
	Version uint64       `json:"version"`
	Time    time.Time    `json:"time"`
}

// Name returns the SSE event name of the message.
func (m Message) Name() string {
	if m.Type == TypeStoreEvent && m.Event != nil {
		return string(m.Event.Type)
	}
	return string(m.Type)
}

// Sink receives every hub message on its own goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// DefaultBuffer is the channel capacity of a subscriber.
const DefaultBuffer = 32

// Hub broadcasts messages to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Message]struct{}
	closed bool

	sinks   []Sink
	wg      sync.WaitGroup
	metrics *metrics.Collector
	log     *slog.Logger
	now     func() time.Time
}

// NewHub creates an empty hub. mc may be nil.
func NewHub(mc *metrics.Collector, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[chan Message]struct{}),
		metrics: mc,
		log:     logger.With("component", "notify"),
		now:     time.Now,
	}
}

// Attach forwards st's events and change notifications to the hub.
// It returns a function that stops forwarding change notifications; store
// event listeners cannot be removed and stop mattering once the hub closes.
func (h *Hub) Attach(st *store.Store) (detach func()) {
	st.OnEvent(func(e store.Event) {
		h.Publish(Message{
			Type:    TypeStoreEvent,
			Event:   &e,
			Records: e.TotalRecords,
			Version: st.Version(),
			Time:    e.Time,
		})
	})
	return st.Subscribe(func(records []core.Record) {
		h.Publish(Message{
			Type:    TypeRecordsChanged,
			Records: len(records),
			Version: st.Version(),
			Time:    h.now(),
		})
	})
}

// Subscribe registers a subscriber with the given buffer size (DefaultBuffer
// if buf <= 0). The returned cancel function unregisters and closes the
// channel; calling it more than once is safe.
func (h *Hub) Subscribe(buf int) (<-chan Message, func()) {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	ch := make(chan Message, buf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			// Subscriber is slow, skip this message
		}
	}
}

// AddSink starts forwarding messages to sink until the hub closes.
func (h *Hub) AddSink(sink Sink) {
	ch, _ := h.Subscribe(DefaultBuffer * 4)

	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for msg := range ch {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := sink.Publish(ctx, msg)
			cancel()
			h.metrics.RecordSinkPublish(sink.Name(), err)
			if err != nil {
				h.log.Warn("sink publish failed", "sink", sink.Name(), "type", msg.Type, "error", err)
			}
		}
	}()
	h.log.Info("sink attached", "sink", sink.Name())
}

// Close closes every subscriber channel, waits for sinks to drain, and
// closes the sinks.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Message]struct{})
	sinks := h.sinks
	h.mu.Unlock()

	h.wg.Wait()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
