package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumenjournal/lumen/pkg/models"
)

// NewSQLiteStores opens (or creates) a sqlite database at path and returns
// sqlite-backed stores. This is the default backend.
func NewSQLiteStores(path string) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent handlers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}

	return StoreSet{
		Users:     &sqlUserStore{db: db, placeholder: questionPlaceholder},
		Posts:     &sqlPostStore{db: db, placeholder: questionPlaceholder},
		Reactions: &sqlReactionStore{db: db, placeholder: questionPlaceholder},
		Replies:   &sqlReplyStore{db: db, placeholder: questionPlaceholder},
		closer:    db.Close,
	}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const usersTable = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		alias TEXT NOT NULL,
		password_hash BYTEA NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`
	const postsTable = `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		mood TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`
	const reactionsTable = `
	CREATE TABLE IF NOT EXISTS reactions (
		post_id TEXT NOT NULL REFERENCES posts(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (post_id, user_id)
	);`
	const repliesTable = `
	CREATE TABLE IF NOT EXISTS replies (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		author_id TEXT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`
	for _, stmt := range []string{usersTable, postsTable, reactionsTable, repliesTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// placeholderFunc renders the nth (1-based) bind parameter for the dialect.
type placeholderFunc func(n int) string

func questionPlaceholder(int) string { return "?" }

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// bind rewrites each "?" in query with the dialect's placeholder.
func bind(query string, placeholder placeholderFunc) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlUserStore struct {
	db          *sql.DB
	placeholder placeholderFunc
}

func (s *sqlUserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user is required")
	}
	handle := strings.ToLower(strings.TrimSpace(user.Handle))
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	_, err := s.db.ExecContext(ctx,
		bind(`INSERT INTO users (id, handle, alias, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`, s.placeholder),
		user.ID, handle, user.Alias, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *sqlUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	return s.get(ctx, `SELECT id, handle, alias, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *sqlUserStore) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	return s.get(ctx,
		`SELECT id, handle, alias, password_hash, created_at FROM users WHERE handle = ?`,
		strings.ToLower(strings.TrimSpace(handle)),
	)
}

func (s *sqlUserStore) get(ctx context.Context, query, arg string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, bind(query, s.placeholder), arg)
	var u models.User
	if err := row.Scan(&u.ID, &u.Handle, &u.Alias, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

type sqlPostStore struct {
	db          *sql.DB
	placeholder placeholderFunc
}

func (s *sqlPostStore) Create(ctx context.Context, post *models.Post) error {
	if post == nil || post.ID == "" {
		return fmt.Errorf("post is required")
	}
	_, err := s.db.ExecContext(ctx,
		bind(`INSERT INTO posts (id, author_id, body, mood, created_at) VALUES (?, ?, ?, ?, ?)`, s.placeholder),
		post.ID, post.AuthorID, post.Body, post.Mood, post.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

const postSelect = `
	SELECT p.id, p.author_id, u.alias, p.body, p.mood, p.created_at,
	       (SELECT COUNT(*) FROM reactions r WHERE r.post_id = p.id) AS hearts
	FROM posts p
	JOIN users u ON u.id = p.author_id`

func (s *sqlPostStore) Get(ctx context.Context, id string) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx, bind(postSelect+` WHERE p.id = ?`, s.placeholder), id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func (s *sqlPostStore) ListRecent(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		bind(postSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`, s.placeholder),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorAlias, &p.Body, &p.Mood, &p.CreatedAt, &p.Hearts); err != nil {
		return nil, err
	}
	return &p, nil
}

type sqlReactionStore struct {
	db          *sql.DB
	placeholder placeholderFunc
}

func (s *sqlReactionStore) Create(ctx context.Context, reaction *models.Reaction) error {
	if reaction == nil || reaction.PostID == "" || reaction.UserID == "" {
		return fmt.Errorf("reaction is required")
	}
	_, err := s.db.ExecContext(ctx,
		bind(`INSERT INTO reactions (post_id, user_id, created_at) VALUES (?, ?, ?)`, s.placeholder),
		reaction.PostID, reaction.UserID, reaction.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create reaction: %w", err)
	}
	return nil
}

type sqlReplyStore struct {
	db          *sql.DB
	placeholder placeholderFunc
}

func (s *sqlReplyStore) Create(ctx context.Context, reply *models.Reply) error {
	if reply == nil || reply.ID == "" || reply.PostID == "" || reply.AuthorID == "" {
		return fmt.Errorf("reply is required")
	}
	_, err := s.db.ExecContext(ctx,
		bind(`INSERT INTO replies (id, post_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`, s.placeholder),
		reply.ID, reply.PostID, reply.AuthorID, reply.Body, reply.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create reply: %w", err)
	}
	return nil
}

func (s *sqlReplyStore) ListForPost(ctx context.Context, postID string) ([]*models.Reply, error) {
	rows, err := s.db.QueryContext(ctx,
		bind(`SELECT r.id, r.post_id, r.author_id, u.alias, r.body, r.created_at
		FROM replies r
		JOIN users u ON u.id = r.author_id
		WHERE r.post_id = ?
		ORDER BY r.created_at ASC, r.id ASC`, s.placeholder),
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var replies []*models.Reply
	for rows.Next() {
		var reply models.Reply
		if err := rows.Scan(&reply.ID, &reply.PostID, &reply.AuthorID, &reply.AuthorAlias, &reply.Body, &reply.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		replies = append(replies, &reply)
	}
	return replies, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func isForeignKeyViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key")
}
