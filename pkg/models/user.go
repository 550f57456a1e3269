package models

import "time"

// User is a registered account. Handles are opaque and self-chosen; the
// display alias is what other users see on the feed, so the account stays
// pseudonymous even when the handle is an email address.
type User struct {
	ID           string    `json:"id"`
	Handle       string    `json:"handle"`
	Alias        string    `json:"alias"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
