// Package storage persists Lumen's users, posts, and reactions.
package storage

import (
	"context"
	"errors"

	"github.com/lumenjournal/lumen/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore persists registered accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByHandle(ctx context.Context, handle string) (*models.User, error)
}

// PostStore persists journal entries. Reads return posts with the author's
// alias and heart count denormalized in.
type PostStore interface {
	Create(ctx context.Context, post *models.Post) error
	Get(ctx context.Context, id string) (*models.Post, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Post, error)
}

// ReactionStore persists hearts. Create returns ErrAlreadyExists when the
// user has already hearted the post.
type ReactionStore interface {
	Create(ctx context.Context, reaction *models.Reaction) error
}

// ReplyStore persists replies. Create returns ErrNotFound when the post does
// not exist; reads return replies with the author's alias denormalized in,
// oldest first.
type ReplyStore interface {
	Create(ctx context.Context, reply *models.Reply) error
	ListForPost(ctx context.Context, postID string) ([]*models.Reply, error)
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Users     UserStore
	Posts     PostStore
	Reactions ReactionStore
	Replies   ReplyStore
	closer    func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
