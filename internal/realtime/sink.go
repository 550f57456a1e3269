// Package realtime fans out server events to live client streams.
//
// The bus is process-local by design: a sink registered here only receives
// events published in this process. Swapping in a networked broker means
// reimplementing Bus behind the same Subscribe/Unsubscribe/Publish surface;
// call sites do not change.
package realtime

import "errors"

// Topic keys. The feed topic is shared by every connected client; each user
// additionally has a private topic for notifications.
const TopicFeed = "feed"

// UserTopic returns the private topic key for a user id.
func UserTopic(userID string) string {
	return "user:" + userID
}

// Frame is one serialized event: a unique id, the event name, and the JSON
// payload. The id lets receivers holding multiple delivery paths (their own
// stream plus a sibling-tab relay) drop duplicates.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

// ErrSinkClosed is returned by a sink whose peer is gone; ErrSinkFull by a
// sink whose buffer cannot accept another frame.
var (
	ErrSinkClosed = errors.New("sink closed")
	ErrSinkFull   = errors.New("sink full")
)

// Sink is a live outbound stream handle registered against a topic. Send
// must not block: implementations buffer and report failure instead of
// stalling the publisher.
type Sink interface {
	Send(frame Frame) error
}
