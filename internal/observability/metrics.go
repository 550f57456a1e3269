package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters for the realtime layer and the HTTP API.
//
// Topic labels use the topic family ("feed", "user"), never the full topic
// key, to keep cardinality bounded regardless of how many users connect.
type Metrics struct {
	// EventsPublished counts Publish calls by topic family.
	EventsPublished *prometheus.CounterVec

	// FramesDelivered counts frames written to a sink's buffer.
	FramesDelivered *prometheus.CounterVec

	// FramesDropped counts frames lost to a full or failed sink.
	FramesDropped *prometheus.CounterVec

	// ActiveStreams tracks currently open stream connections.
	ActiveStreams *prometheus.GaugeVec

	// HTTPRequests counts API requests by method, path, and status code.
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics registers and returns the metric set. A nil registerer uses the
// process-wide default; tests pass their own registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_events_published_total",
			Help: "Events published to the bus.",
		}, []string{"topic_family"}),
		FramesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_frames_delivered_total",
			Help: "Frames handed to a subscriber sink.",
		}, []string{"topic_family"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_frames_dropped_total",
			Help: "Frames dropped because a sink was full or failed.",
		}, []string{"topic_family"}),
		ActiveStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lumen_active_streams",
			Help: "Open event stream connections.",
		}, []string{"topic_family"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_http_requests_total",
			Help: "HTTP API requests.",
		}, []string{"method", "path", "status"}),
	}
}

// TopicFamily reduces a topic key to its family label.
func TopicFamily(topic string) string {
	if i := strings.IndexByte(topic, ':'); i > 0 {
		return topic[:i]
	}
	return topic
}
