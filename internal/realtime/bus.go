package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lumenjournal/lumen/internal/observability"
)

// Bus maps topic keys to the set of sinks subscribed to them and fans
// published events out to every sink on the topic. It is constructed once at
// process start and passed by reference to every producer and endpoint; it
// holds the only shared mutable state in the realtime layer.
type Bus struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	topics map[string]map[Sink]struct{}
}

// NewBus creates an empty bus. If logger is nil, slog.Default() is used.
// Metrics may be nil.
func NewBus(logger *slog.Logger, metrics *observability.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:  logger.With("component", "bus"),
		metrics: metrics,
		topics:  make(map[string]map[Sink]struct{}),
	}
}

// Subscribe adds sink to the topic's set, creating the topic on first use.
// Subscribing the same sink twice is a no-op.
func (b *Bus) Subscribe(sink Sink, topic string) {
	if sink == nil || topic == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[Sink]struct{})
		b.topics[topic] = set
	}
	set[sink] = struct{}{}
}

// Unsubscribe removes sink from the topic's set, pruning the topic entry
// when its set becomes empty. Unknown sinks and topics are a no-op.
func (b *Bus) Unsubscribe(sink Sink, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(b.topics, topic)
	}
}

// Publish serializes the payload once and writes the frame to every sink
// currently subscribed to topic. Delivery is best-effort: a sink that fails
// to accept the frame is skipped, payloads that cannot be serialized are
// dropped, and the caller never sees an error either way. Publishing to a
// topic with no subscribers is a no-op.
func (b *Bus) Publish(topic, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("dropping unserializable event", "topic", topic, "event", event, "error", err)
		return
	}
	frame := Frame{ID: uuid.NewString(), Event: event, Data: data}

	family := observability.TopicFamily(topic)
	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(family).Inc()
	}

	// Sends happen under the read lock so frames reach each sink in publish
	// order. Sink.Send is non-blocking, so the lock is held only briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sink := range b.topics[topic] {
		if err := sink.Send(frame); err != nil {
			b.logger.Debug("sink write failed", "topic", topic, "event", event, "error", err)
			if b.metrics != nil {
				b.metrics.FramesDropped.WithLabelValues(family).Inc()
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.FramesDelivered.WithLabelValues(family).Inc()
		}
	}
}

// Subscribers reports how many sinks are registered on topic. It exists for
// tests and the health endpoint; producers must not branch on it.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topics reports how many topics currently have at least one subscriber.
func (b *Bus) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
