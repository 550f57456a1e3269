package models

import "time"

// NotificationKind discriminates private notification payloads.
type NotificationKind string

const (
	NotificationHeart NotificationKind = "heart"
	NotificationReply NotificationKind = "reply"
)

// Notification is the payload published to a user's private topic when
// someone interacts with their post. It is ephemeral: delivered over the
// live stream or not at all, never persisted.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	PostID    string           `json:"post_id"`
	FromAlias string           `json:"from_alias"`
	CreatedAt time.Time        `json:"created_at"`
}
