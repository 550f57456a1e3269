package receiver

import "sync"

type signalKind int

const (
	signalMarkRead signalKind = iota
	signalClear
)

// TabGroup is the same-device broadcast channel between sibling receivers of
// one user. Each member still holds its own live stream connection; the
// group is a convenience sync so every tab reflects an update the moment any
// tab receives it, not a substitute for the connection. Reset and clear
// signals are last-write-wins.
type TabGroup struct {
	mu      sync.RWMutex
	members map[*Receiver]struct{}
}

// NewTabGroup creates an empty group.
func NewTabGroup() *TabGroup {
	return &TabGroup{members: make(map[*Receiver]struct{})}
}

func (g *TabGroup) join(r *Receiver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[r] = struct{}{}
}

func (g *TabGroup) leave(r *Receiver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, r)
}

// relay delivers an item received by one member to every other member.
// Receiving members dedup by event id, so a tab that already saw the event
// on its own stream ignores the relay.
func (g *TabGroup) relay(from *Receiver, item Item) {
	for _, member := range g.others(from) {
		member.ingest(item, false)
	}
}

// signal propagates a markAllRead/clear action to every other member.
func (g *TabGroup) signal(from *Receiver, kind signalKind) {
	for _, member := range g.others(from) {
		member.applySignal(kind)
	}
}

func (g *TabGroup) others(from *Receiver) []*Receiver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	others := make([]*Receiver, 0, len(g.members))
	for member := range g.members {
		if member != from {
			others = append(others, member)
		}
	}
	return others
}
