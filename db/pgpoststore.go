package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	app "github.com/etitcombe/blogpom"
)

// PgPostStore stores posts in PostgreSQL.
type PgPostStore struct {
	pool *pgxpool.Pool
	url  string

	// MaxConns caps the pool size when positive.
	MaxConns int32
}

// NewPgPostStore creates a new instance of a PgPostStore.
func NewPgPostStore(url string) *PgPostStore {
	return &PgPostStore{url: url, MaxConns: 10}
}

// Open connects the pool, checks the connection and runs pending migrations.
func (ps *PgPostStore) Open(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(ps.url)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if ps.MaxConns > 0 {
		cfg.MaxConns = ps.MaxConns
	}
	// Reduce planning overhead by caching prepared statements per connection.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	if ps.pool, err = pgxpool.NewWithConfig(ctx, cfg); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := ps.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	if err := ps.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (ps *PgPostStore) Close() error {
	if ps.pool != nil {
		ps.pool.Close()
	}
	return nil
}

// List gets a page of posts, newest first.
func (ps *PgPostStore) List(ctx context.Context, offset, limit int) ([]app.Post, error) {
	rows, err := ps.pool.Query(ctx, `SELECT id, title, text FROM post
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, app.StorageErr("list posts", err)
	}
	posts, err := pgx.CollectRows(rows, pgx.RowToStructByName[app.Post])
	if err != nil {
		return nil, app.StorageErr("list posts", err)
	}
	if posts == nil {
		posts = []app.Post{}
	}
	return posts, nil
}

// Count returns the number of posts.
func (ps *PgPostStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ps.pool.QueryRow(ctx, `SELECT COUNT(*) FROM post`).Scan(&n); err != nil {
		return 0, app.StorageErr("count posts", err)
	}
	return n, nil
}

// Get gets a post by its id.
func (ps *PgPostStore) Get(ctx context.Context, id int64) (app.Post, error) {
	rows, err := ps.pool.Query(ctx, `SELECT id, title, text FROM post WHERE id = $1`, id)
	if err != nil {
		return app.Post{}, app.StorageErr("get post", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[app.Post])
	return p, app.StorageErr("get post", notFound(err))
}

// Create inserts a new post and returns it with its id.
func (ps *PgPostStore) Create(ctx context.Context, title, text string) (app.Post, error) {
	var p app.Post
	err := ps.pool.QueryRow(ctx, `INSERT INTO post (title, text) VALUES ($1, $2)
		RETURNING id, title, text`, title, text).Scan(&p.ID, &p.Title, &p.Text)
	if err != nil {
		return app.Post{}, app.StorageErr("create post", err)
	}
	return p, nil
}

// CreateMany sends all inserts in one batch inside a transaction.
func (ps *PgPostStore) CreateMany(ctx context.Context, posts []app.PostForm) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	err := pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, f := range posts {
			batch.Queue(`INSERT INTO post (title, text) VALUES ($1, $2)`, f.Title, f.Text)
		}
		br := tx.SendBatch(ctx, batch)
		for range posts {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, app.StorageErr("create posts", err)
	}
	return len(posts), nil
}

// Update replaces the title and text of a post.
func (ps *PgPostStore) Update(ctx context.Context, id int64, title, text string) (app.Post, error) {
	var p app.Post
	err := ps.pool.QueryRow(ctx, `UPDATE post SET title = $1, text = $2 WHERE id = $3
		RETURNING id, title, text`, title, text, id).Scan(&p.ID, &p.Title, &p.Text)
	if err != nil {
		return app.Post{}, app.StorageErr("update post", notFound(err))
	}
	return p, nil
}

// Delete deletes the post with the given id.
func (ps *PgPostStore) Delete(ctx context.Context, id int64) error {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM post WHERE id = $1`, id)
	if err != nil {
		return app.StorageErr("delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}
