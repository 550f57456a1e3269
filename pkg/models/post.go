package models

import "time"

// MaxPostLength caps the body of a journal entry.
const MaxPostLength = 2000

// Post is one journal entry on the public feed. AuthorAlias is denormalized
// at read time so feed payloads never expose the author's handle.
type Post struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"-"`
	AuthorAlias string    `json:"author_alias"`
	Body        string    `json:"body"`
	Mood        string    `json:"mood,omitempty"`
	Hearts      int       `json:"hearts"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reaction records one user hearting one post. A user may heart a post at
// most once.
type Reaction struct {
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxReplyLength caps the body of a reply.
const MaxReplyLength = 500

// Reply is a short response to a journal entry. Like posts, replies carry
// the author's alias, never their handle.
type Reply struct {
	ID          string    `json:"id"`
	PostID      string    `json:"post_id"`
	AuthorID    string    `json:"-"`
	AuthorAlias string    `json:"author_alias"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}
