// Package receiver maintains a live notification stream for one session.
//
// It mirrors the browser client's behavior for Go consumers and tests: one
// stream connection per authenticated session, a capped most-recent-first
// buffer of received items, an unread counter, reconnection with capped
// exponential backoff, and same-device sync across sibling receivers (the
// "other tabs" of the same user) through a TabGroup.
package receiver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lumenjournal/lumen/internal/backoff"
)

// DefaultCapacity is the retained-item cap. Only the item list is capped;
// the unread counter keeps counting.
const DefaultCapacity = 20

// Item is one notification as held by the receiver.
type Item struct {
	EventID    string          `json:"event_id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Config configures a receiver.
type Config struct {
	// URL is the notification stream endpoint.
	URL string
	// Token is the session token sent as a Bearer credential.
	Token string
	// Capacity bounds the retained item list (default 20).
	Capacity int
	// Backoff is the reconnect schedule (default ReconnectPolicy). The
	// server's retry directive overrides the initial delay.
	Backoff backoff.Policy
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Group is the same-device broadcast group. Nil means no tab sync.
	Group *TabGroup
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Receiver holds the notification state for one tab of one session.
type Receiver struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	items  []Item
	unread int
	seen   map[string]struct{}
	order  []string // seen ids, oldest first, for bounded dedup memory
	policy backoff.Policy

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a receiver. It does not connect until Start is called.
func New(config Config) *Receiver {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Backoff == (backoff.Policy{}) {
		config.Backoff = backoff.ReconnectPolicy()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Receiver{
		config: config,
		logger: logger.With("component", "receiver"),
		seen:   make(map[string]struct{}),
		policy: config.Backoff,
		done:   make(chan struct{}),
	}
	if config.Group != nil {
		config.Group.join(r)
	}
	return r
}

// Start opens the stream connection and keeps it alive until ctx is
// cancelled or Close is called. Call once, when the session authenticates.
func (r *Receiver) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		select {
		case <-r.done:
			return
		default:
		}
		ctx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go r.run(ctx)
	})
}

// Close tears down the connection and clears all local state. Call when the
// session ends. Safe to call more than once.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		close(r.done)
		if r.config.Group != nil {
			r.config.Group.leave(r)
		}
		r.mu.Lock()
		r.items = nil
		r.unread = 0
		r.seen = make(map[string]struct{})
		r.order = nil
		r.mu.Unlock()
	})
}

// Items returns the retained notifications, most recent first.
func (r *Receiver) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.items...)
}

// Unread returns the unread counter.
func (r *Receiver) Unread() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// MarkAllRead zeroes the unread counter and propagates the reset to sibling
// tabs. Idempotent.
func (r *Receiver) MarkAllRead() {
	r.mu.Lock()
	r.unread = 0
	r.mu.Unlock()
	if r.config.Group != nil {
		r.config.Group.signal(r, signalMarkRead)
	}
}

// Clear empties the item list and the counter and propagates to siblings.
func (r *Receiver) Clear() {
	r.mu.Lock()
	r.items = nil
	r.unread = 0
	r.mu.Unlock()
	if r.config.Group != nil {
		r.config.Group.signal(r, signalClear)
	}
}

// ingest inserts one item: dedup by event id, prepend with eviction beyond
// capacity, bump the counter. relay controls whether the item is also
// broadcast to sibling tabs (true for items off our own stream, false for
// items that arrived via the group, so a relay cannot echo forever).
func (r *Receiver) ingest(item Item, relay bool) {
	r.mu.Lock()
	if item.EventID != "" {
		if _, dup := r.seen[item.EventID]; dup {
			r.mu.Unlock()
			return
		}
		r.remember(item.EventID)
	}

	r.items = append([]Item{item}, r.items...)
	if len(r.items) > r.config.Capacity {
		r.items = r.items[:r.config.Capacity]
	}
	r.unread++
	r.mu.Unlock()

	if relay && r.config.Group != nil {
		r.config.Group.relay(r, item)
	}
}

// remember records a seen event id, forgetting the oldest beyond a bound
// (caller holds the lock). The bound is generous relative to capacity: old
// ids only matter while a sibling relay of the same event could still be in
// flight.
func (r *Receiver) remember(id string) {
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	if limit := r.config.Capacity * 4; len(r.order) > limit {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
}

// applySignal handles a read/clear signal relayed from a sibling tab.
func (r *Receiver) applySignal(kind signalKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case signalMarkRead:
		r.unread = 0
	case signalClear:
		r.items = nil
		r.unread = 0
	}
}
