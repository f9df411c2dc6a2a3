package app

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength is the longest title, in characters, a post may have.
const MaxTitleLength = 255

// PostForm is the submitted title and text of a post.
type PostForm struct {
	Title string
	Text  string
}

// NewPostForm returns a PostForm for the raw form values.
func NewPostForm(title, text string) PostForm {
	return PostForm{Title: title, Text: text}
}

// ValidationError lists the problems found in a submitted form, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid post: " + strings.Join(parts, "; ")
}

// Validate trims the form and checks that both fields are present.
func (f PostForm) Validate() (PostForm, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Text = strings.TrimSpace(f.Text)

	fields := map[string]string{}
	if f.Title == "" {
		fields["title"] = "Title is required."
	} else if utf8.RuneCountInString(f.Title) > MaxTitleLength {
		fields["title"] = fmt.Sprintf("Title must be at most %d characters.", MaxTitleLength)
	}
	if f.Text == "" {
		fields["text"] = "Text is required."
	}
	if len(fields) > 0 {
		return f, &ValidationError{Fields: fields}
	}
	return f, nil
}
