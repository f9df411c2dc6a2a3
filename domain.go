package app

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a PostStore when no post has the requested id.
var ErrNotFound = errors.New("post not found")

// Post represents a blog post.
type Post struct {
	ID    int64  `db:"id"`
	Title string `db:"title"`
	Text  string `db:"text"`
}

// PostStore represents the actions that can be taken about posts.
//
// List returns posts newest first (id descending).
type PostStore interface {
	List(ctx context.Context, offset, limit int) ([]Post, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id int64) (Post, error)
	Create(ctx context.Context, title, text string) (Post, error)
	Update(ctx context.Context, id int64, title, text string) (Post, error)
	Delete(ctx context.Context, id int64) error
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StorageErr wraps err in a StorageError unless it is nil or ErrNotFound.
func StorageErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
