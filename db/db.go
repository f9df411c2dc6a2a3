// Package db implements app.PostStore over sqlite and PostgreSQL.
package db

import (
	"context"
	"fmt"
	"strings"

	app "github.com/etitcombe/blogpom"
)

// Store is a migrated, open post store.
type Store interface {
	app.PostStore
	// CreateMany inserts posts in one round trip where the database allows it
	// and returns the number inserted.
	CreateMany(ctx context.Context, posts []app.PostForm) (int, error)
	Close() error
}

// Open connects to the database named by databaseURL and brings its schema
// up to date. sqlite:, sqlite:// and file: URLs open sqlite; postgres:// and
// postgresql:// URLs open PostgreSQL.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		s := NewPgPostStore(u)
		if err := s.Open(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(u, "sqlite:"), strings.HasPrefix(u, "file:"):
		s, err := NewPostStore(sqliteDSN(u))
		if err != nil {
			return nil, err
		}
		if err := s.Open(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", redact(u))
	}
}

// sqliteDSN strips the sqlite scheme, leaving a path or file: URI that
// go-sqlite3 understands.
func sqliteDSN(u string) string {
	if strings.HasPrefix(u, "file:") {
		return u
	}
	dsn := strings.TrimPrefix(u, "sqlite:")
	dsn = strings.TrimPrefix(dsn, "//")
	return dsn
}

func redact(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "..."
	}
	if i := strings.Index(u, ":"); i >= 0 {
		return u[:i+1] + "..."
	}
	return "..."
}
