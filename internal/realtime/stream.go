package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/observability"
)

// StreamConfig tunes the SSE endpoints.
type StreamConfig struct {
	// HeartbeatInterval is how often a comment frame is written to defeat
	// idle-connection timeouts in intermediary proxies. It is not a liveness
	// probe; disconnects are detected from the request context.
	HeartbeatInterval time.Duration
	// RetryHint is the reconnect delay advertised to clients in the initial
	// retry directive.
	RetryHint time.Duration
	// SinkBuffer is the per-connection frame buffer. A client that falls
	// this far behind starts losing frames rather than stalling publishers.
	SinkBuffer int
}

// DefaultStreamConfig returns the stream defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: 15 * time.Second,
		RetryHint:         3 * time.Second,
		SinkBuffer:        16,
	}
}

// Streamer bridges inbound HTTP requests into long-lived event streams fed
// by the bus.
type Streamer struct {
	bus     *Bus
	config  StreamConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	// closed when the server shuts down; every open stream unwinds.
	done   <-chan struct{}
	cancel context.CancelFunc
}

// NewStreamer wires stream endpoints to the bus.
func NewStreamer(bus *Bus, config StreamConfig, logger *slog.Logger, metrics *observability.Metrics) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultStreamConfig().HeartbeatInterval
	}
	if config.RetryHint <= 0 {
		config.RetryHint = DefaultStreamConfig().RetryHint
	}
	if config.SinkBuffer <= 0 {
		config.SinkBuffer = DefaultStreamConfig().SinkBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Streamer{
		bus:     bus,
		config:  config,
		logger:  logger.With("component", "stream"),
		metrics: metrics,
		done:    ctx.Done(),
		cancel:  cancel,
	}
	return s
}

// Close releases every open stream. Safe to call more than once.
func (s *Streamer) Close() {
	s.cancel()
}

// FeedHandler streams public feed events. No authentication required.
func (s *Streamer) FeedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, TopicFeed)
	})
}

// NotificationsHandler streams the caller's private notifications. Callers
// without an authenticated identity are rejected before any sink exists.
func (s *Streamer) NotificationsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		s.serve(w, r, UserTopic(identity.UserID))
	})
}

// streamSink adapts one connection's frame buffer to the bus Sink interface.
// Send never blocks: when the buffer is full the frame is dropped and the
// bus moves on to the next subscriber.
type streamSink struct {
	frames chan Frame
}

func newStreamSink(buffer int) *streamSink {
	return &streamSink{frames: make(chan Frame, buffer)}
}

func (s *streamSink) Send(frame Frame) error {
	select {
	case s.frames <- frame:
		return nil
	default:
		return ErrSinkFull
	}
}

// serve runs one stream connection from registration to cleanup.
func (s *Streamer) serve(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	// Reconnection hint. If this write fails the client is already gone.
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", s.config.RetryHint.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	family := observability.TopicFamily(topic)
	sink := newStreamSink(s.config.SinkBuffer)
	s.bus.Subscribe(sink, topic)
	defer s.bus.Unsubscribe(sink, topic)

	if s.metrics != nil {
		s.metrics.ActiveStreams.WithLabelValues(family).Inc()
		defer s.metrics.ActiveStreams.WithLabelValues(family).Dec()
	}
	s.logger.Debug("stream opened", "topic", topic, "remote_addr", r.RemoteAddr)
	defer s.logger.Debug("stream closed", "topic", topic, "remote_addr", r.RemoteAddr)

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case frame := <-sink.frames:
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", frame.ID, frame.Event, frame.Data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
