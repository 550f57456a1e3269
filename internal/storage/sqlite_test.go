package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lumenjournal/lumen/pkg/models"
)

func newTestSQLite(t *testing.T) StoreSet {
	t.Helper()
	stores, err := NewSQLiteStores(filepath.Join(t.TempDir(), "lumen.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStores: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func TestSQLiteStores_RoundTrip(t *testing.T) {
	stores := newTestSQLite(t)
	ctx := context.Background()

	user := &models.User{
		ID:           "u-1",
		Handle:       "Fox@example.com",
		Alias:        "quiet-fox",
		PasswordHash: []byte("not-a-real-hash"),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := stores.Users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := stores.Users.Create(ctx, user); err != ErrAlreadyExists {
		t.Errorf("duplicate user error = %v, want ErrAlreadyExists", err)
	}

	got, err := stores.Users.GetByHandle(ctx, "fox@example.com")
	if err != nil {
		t.Fatalf("GetByHandle: %v", err)
	}
	if got.ID != "u-1" || string(got.PasswordHash) != "not-a-real-hash" {
		t.Errorf("got user %+v", got)
	}

	post := &models.Post{
		ID:        "p-1",
		AuthorID:  "u-1",
		Body:      "first entry",
		Mood:      "calm",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := stores.Posts.Create(ctx, post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	if err := stores.Reactions.Create(ctx, &models.Reaction{PostID: "p-1", UserID: "u-1", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create reaction: %v", err)
	}
	if err := stores.Reactions.Create(ctx, &models.Reaction{PostID: "p-1", UserID: "u-1", CreatedAt: time.Now().UTC()}); err != ErrAlreadyExists {
		t.Errorf("double heart error = %v, want ErrAlreadyExists", err)
	}

	fetched, err := stores.Posts.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if fetched.AuthorAlias != "quiet-fox" {
		t.Errorf("alias = %q, want quiet-fox", fetched.AuthorAlias)
	}
	if fetched.Hearts != 1 {
		t.Errorf("hearts = %d, want 1", fetched.Hearts)
	}

	reply := &models.Reply{
		ID:        "r-1",
		PostID:    "p-1",
		AuthorID:  "u-1",
		Body:      "a reply",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := stores.Replies.Create(ctx, reply); err != nil {
		t.Fatalf("create reply: %v", err)
	}
	replies, err := stores.Replies.ListForPost(ctx, "p-1")
	if err != nil {
		t.Fatalf("ListForPost: %v", err)
	}
	if len(replies) != 1 || replies[0].Body != "a reply" || replies[0].AuthorAlias != "quiet-fox" {
		t.Errorf("replies = %+v", replies)
	}
}

func TestSQLiteStores_ListRecentOrder(t *testing.T) {
	stores := newTestSQLite(t)
	ctx := context.Background()

	if err := stores.Users.Create(ctx, &models.User{
		ID: "u-1", Handle: "a@example.com", Alias: "quiet-fox",
		PasswordHash: []byte("x"), CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"p-1", "p-2", "p-3"} {
		err := stores.Posts.Create(ctx, &models.Post{
			ID:        id,
			AuthorID:  "u-1",
			Body:      "entry",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	posts, err := stores.Posts.ListRecent(ctx, 10, 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "p-2" || posts[1].ID != "p-1" {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		t.Errorf("got %v, want [p-2 p-1]", ids)
	}
}

func TestBind(t *testing.T) {
	got := bind(`INSERT INTO t (a, b) VALUES (?, ?)`, dollarPlaceholder)
	want := `INSERT INTO t (a, b) VALUES ($1, $2)`
	if got != want {
		t.Errorf("bind = %q, want %q", got, want)
	}
	if got := bind(`SELECT 1`, dollarPlaceholder); got != `SELECT 1` {
		t.Errorf("bind without params = %q", got)
	}
}
