package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	app "github.com/etitcombe/blogpom"
	_ "github.com/mattn/go-sqlite3" // sqlite
)

// PostStore stores posts in sqlite.
type PostStore struct {
	db  *sql.DB
	dsn string
}

// NewPostStore creates a new instance of a PostStore.
func NewPostStore(dsn string) (*PostStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn required")
	}
	return &PostStore{dsn: dsn}, nil
}

// Open opens the connection to the database and runs pending migrations.
func (ps *PostStore) Open(ctx context.Context) error {
	memory := strings.Contains(ps.dsn, ":memory:") || strings.Contains(ps.dsn, "mode=memory")

	// Make the parent directory unless using an in-memory db.
	if !memory {
		path := strings.TrimPrefix(ps.dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return err
		}
	}

	var err error
	if ps.db, err = sql.Open("sqlite3", ps.dsn); err != nil {
		return err
	}
	// Every connection to :memory: is a separate database.
	if memory {
		ps.db.SetMaxOpenConns(1)
	}

	if err := ps.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	// Enable WAL. SQLite performs better with the WAL because it allows
	// multiple readers to operate while data is being written.
	if !memory {
		if _, err := ps.db.ExecContext(ctx, `PRAGMA journal_mode = wal;`); err != nil {
			return fmt.Errorf("enable wal: %w", err)
		}
	}

	// Writers wait on each other instead of failing with SQLITE_BUSY.
	if _, err := ps.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("busy timeout pragma: %w", err)
	}

	if err := ps.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// Close closes the connection to the data store.
func (ps *PostStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

// List gets a page of posts, newest first.
func (ps *PostStore) List(ctx context.Context, offset, limit int) ([]app.Post, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, app.StorageErr("list posts", err)
	}
	defer tx.Rollback()

	posts, err := listPosts(ctx, tx, offset, limit)
	if err != nil {
		return nil, app.StorageErr("list posts", err)
	}
	return posts, nil
}

// Count returns the number of posts.
func (ps *PostStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post`).Scan(&n); err != nil {
		return 0, app.StorageErr("count posts", err)
	}
	return n, nil
}

// Get gets a post by its id.
func (ps *PostStore) Get(ctx context.Context, id int64) (app.Post, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return app.Post{}, app.StorageErr("get post", err)
	}
	defer tx.Rollback()

	p, err := getPost(ctx, tx, id)
	if err != nil {
		return app.Post{}, app.StorageErr("get post", err)
	}
	return p, nil
}

// Create inserts a new post and returns it with its id.
func (ps *PostStore) Create(ctx context.Context, title, text string) (app.Post, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return app.Post{}, app.StorageErr("create post", err)
	}
	defer tx.Rollback()

	p, err := insertPost(ctx, tx, title, text)
	if err != nil {
		return app.Post{}, app.StorageErr("create post", err)
	}
	if err := tx.Commit(); err != nil {
		return app.Post{}, app.StorageErr("create post", err)
	}
	return p, nil
}

// CreateMany inserts posts in a single transaction.
func (ps *PostStore) CreateMany(ctx context.Context, posts []app.PostForm) (int, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, app.StorageErr("create posts", err)
	}
	defer tx.Rollback()

	for _, f := range posts {
		if _, err := insertPost(ctx, tx, f.Title, f.Text); err != nil {
			return 0, app.StorageErr("create posts", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, app.StorageErr("create posts", err)
	}
	return len(posts), nil
}

// Update replaces the title and text of a post.
func (ps *PostStore) Update(ctx context.Context, id int64, title, text string) (app.Post, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return app.Post{}, app.StorageErr("update post", err)
	}
	defer tx.Rollback()

	if err := updatePost(ctx, tx, id, title, text); err != nil {
		return app.Post{}, app.StorageErr("update post", err)
	}
	if err := tx.Commit(); err != nil {
		return app.Post{}, app.StorageErr("update post", err)
	}
	return app.Post{ID: id, Title: title, Text: text}, nil
}

// Delete deletes the post with the given id.
func (ps *PostStore) Delete(ctx context.Context, id int64) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return app.StorageErr("delete post", err)
	}
	defer tx.Rollback()

	if err := deletePost(ctx, tx, id); err != nil {
		return app.StorageErr("delete post", err)
	}
	return app.StorageErr("delete post", tx.Commit())
}

func listPosts(ctx context.Context, tx *sql.Tx, offset, limit int) ([]app.Post, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, title, text FROM post
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []app.Post{}

	for rows.Next() {
		var p app.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Text); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}

func getPost(ctx context.Context, tx *sql.Tx, id int64) (app.Post, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, title, text FROM post WHERE id = ?`, id)
	var p app.Post
	err := row.Scan(&p.ID, &p.Title, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return app.Post{}, app.ErrNotFound
	}
	if err != nil {
		return app.Post{}, err
	}
	return p, nil
}

func insertPost(ctx context.Context, tx *sql.Tx, title, text string) (app.Post, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO post (title, text) VALUES (?, ?)`, title, text)
	if err != nil {
		return app.Post{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return app.Post{}, err
	}
	return app.Post{ID: id, Title: title, Text: text}, nil
}

func updatePost(ctx context.Context, tx *sql.Tx, id int64, title, text string) error {
	res, err := tx.ExecContext(ctx, `UPDATE post SET title = ?, text = ? WHERE id = ?`, title, text, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func deletePost(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM post WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}
