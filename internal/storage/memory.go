package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lumenjournal/lumen/pkg/models"
)

// NewMemoryStores creates an in-memory StoreSet for tests and the seed
// command. All three stores share one lock so heart counts read consistently.
func NewMemoryStores() StoreSet {
	m := &memoryState{
		users:     make(map[string]*models.User),
		byHandle:  make(map[string]string),
		posts:     make(map[string]*models.Post),
		reactions: make(map[string]map[string]struct{}),
		replies:   make(map[string][]*models.Reply),
	}
	return StoreSet{
		Users:     &memoryUserStore{state: m},
		Posts:     &memoryPostStore{state: m},
		Reactions: &memoryReactionStore{state: m},
		Replies:   &memoryReplyStore{state: m},
	}
}

type memoryState struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	byHandle  map[string]string // handle -> user id
	posts     map[string]*models.Post
	reactions map[string]map[string]struct{} // post id -> set of user ids
	replies   map[string][]*models.Reply     // post id -> replies, oldest first
	order     []string                       // post ids in insertion order
}

type memoryUserStore struct {
	state *memoryState
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user is required")
	}
	handle := strings.ToLower(strings.TrimSpace(user.Handle))
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.users[user.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := s.state.byHandle[handle]; exists {
		return ErrAlreadyExists
	}
	u := *user
	u.Handle = handle
	s.state.users[user.ID] = &u
	s.state.byHandle[handle] = user.ID
	return nil
}

func (s *memoryUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	user, ok := s.state.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memoryUserStore) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	id, ok := s.state.byHandle[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.state.users[id]
	return &copied, nil
}

type memoryPostStore struct {
	state *memoryState
}

func (s *memoryPostStore) Create(ctx context.Context, post *models.Post) error {
	if post == nil || post.ID == "" {
		return fmt.Errorf("post is required")
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.posts[post.ID]; exists {
		return ErrAlreadyExists
	}
	copied := *post
	s.state.posts[post.ID] = &copied
	s.state.order = append(s.state.order, post.ID)
	return nil
}

func (s *memoryPostStore) Get(ctx context.Context, id string) (*models.Post, error) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	post, ok := s.state.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.decorate(post), nil
}

func (s *memoryPostStore) ListRecent(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	ids := make([]string, len(s.state.order))
	copy(ids, s.state.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.state.posts[ids[i]].CreatedAt.After(s.state.posts[ids[j]].CreatedAt)
	})

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if len(ids) > limit {
		ids = ids[:limit]
	}

	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		posts = append(posts, s.decorate(s.state.posts[id]))
	}
	return posts, nil
}

// decorate fills in the author alias and heart count (caller holds the lock).
func (s *memoryPostStore) decorate(post *models.Post) *models.Post {
	copied := *post
	if author, ok := s.state.users[post.AuthorID]; ok {
		copied.AuthorAlias = author.Alias
	}
	copied.Hearts = len(s.state.reactions[post.ID])
	return &copied
}

type memoryReplyStore struct {
	state *memoryState
}

func (s *memoryReplyStore) Create(ctx context.Context, reply *models.Reply) error {
	if reply == nil || reply.ID == "" || reply.PostID == "" || reply.AuthorID == "" {
		return fmt.Errorf("reply is required")
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.posts[reply.PostID]; !exists {
		return ErrNotFound
	}
	copied := *reply
	s.state.replies[reply.PostID] = append(s.state.replies[reply.PostID], &copied)
	return nil
}

func (s *memoryReplyStore) ListForPost(ctx context.Context, postID string) ([]*models.Reply, error) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	replies := make([]*models.Reply, 0, len(s.state.replies[postID]))
	for _, reply := range s.state.replies[postID] {
		copied := *reply
		if author, ok := s.state.users[reply.AuthorID]; ok {
			copied.AuthorAlias = author.Alias
		}
		replies = append(replies, &copied)
	}
	return replies, nil
}

type memoryReactionStore struct {
	state *memoryState
}

func (s *memoryReactionStore) Create(ctx context.Context, reaction *models.Reaction) error {
	if reaction == nil || reaction.PostID == "" || reaction.UserID == "" {
		return fmt.Errorf("reaction is required")
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.posts[reaction.PostID]; !exists {
		return ErrNotFound
	}
	set, ok := s.state.reactions[reaction.PostID]
	if !ok {
		set = make(map[string]struct{})
		s.state.reactions[reaction.PostID] = set
	}
	if _, exists := set[reaction.UserID]; exists {
		return ErrAlreadyExists
	}
	set[reaction.UserID] = struct{}{}
	return nil
}
