package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig tunes the postgres connection pool.
type PostgresConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// DefaultPostgresConfig returns pool defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// NewPostgresStores creates postgres-backed stores using a DSN. The schema
// is the same as sqlite's; only placeholders and pool tuning differ, so the
// stores reuse the sql* implementations with dollar placeholders.
func NewPostgresStores(dsn string, config *PostgresConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}

	return StoreSet{
		Users:     &sqlUserStore{db: db, placeholder: dollarPlaceholder},
		Posts:     &sqlPostStore{db: db, placeholder: dollarPlaceholder},
		Reactions: &sqlReactionStore{db: db, placeholder: dollarPlaceholder},
		Replies:   &sqlReplyStore{db: db, placeholder: dollarPlaceholder},
		closer:    db.Close,
	}, nil
}
