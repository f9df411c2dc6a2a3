package app

import (
	"math"
	"strconv"
	"strings"
)

// PageConfig holds the page size settings for post listings.
type PageConfig struct {
	PostsPerPage    int
	MaxPostsPerPage int
}

// DefaultPageConfig is used when no page size settings are configured.
var DefaultPageConfig = PageConfig{PostsPerPage: 5, MaxPostsPerPage: 50}

// PageRequest is a resolved page of a listing. Page and PostsPerPage are
// always at least 1.
type PageRequest struct {
	Page         int
	PostsPerPage int
}

// Offset is the number of posts before the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PostsPerPage
}

// Limit is the number of posts on the page.
func (p PageRequest) Limit() int {
	return p.PostsPerPage
}

// ResolvePage turns raw query values into a PageRequest. Missing or malformed
// values fall back to the defaults and an oversized page size is clamped.
func ResolvePage(rawPage, rawPostsPerPage string, cfg PageConfig) PageRequest {
	if cfg.MaxPostsPerPage <= 0 {
		cfg.MaxPostsPerPage = DefaultPageConfig.MaxPostsPerPage
	}
	if cfg.PostsPerPage <= 0 {
		cfg.PostsPerPage = DefaultPageConfig.PostsPerPage
	}
	if cfg.PostsPerPage > cfg.MaxPostsPerPage {
		cfg.PostsPerPage = cfg.MaxPostsPerPage
	}

	perPage := parsePositive(rawPostsPerPage, cfg.PostsPerPage)
	if perPage > cfg.MaxPostsPerPage {
		perPage = cfg.MaxPostsPerPage
	}

	page := parsePositive(rawPage, 1)
	// Keep (page-1)*perPage inside an int.
	if maxPage := math.MaxInt/perPage + 1; page > maxPage {
		page = maxPage
	}

	return PageRequest{Page: page, PostsPerPage: perPage}
}

func parsePositive(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Pagination describes where a page sits in the whole listing.
type Pagination struct {
	Page         int
	PostsPerPage int
	NumPages     int
	Total        int
}

// NewPagination computes the page count for total posts. There is always at
// least one page, even when there are no posts.
func NewPagination(p PageRequest, total int) Pagination {
	numPages := 1
	if total > 0 {
		numPages = (total + p.PostsPerPage - 1) / p.PostsPerPage
	}
	return Pagination{
		Page:         p.Page,
		PostsPerPage: p.PostsPerPage,
		NumPages:     numPages,
		Total:        total,
	}
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }

func (p Pagination) HasNext() bool { return p.Page < p.NumPages }

// PrevPage is the page before this one, or the last page when this one is
// past the end.
func (p Pagination) PrevPage() int {
	if p.Page > p.NumPages {
		return p.NumPages
	}
	return p.Page - 1
}

func (p Pagination) NextPage() int { return p.Page + 1 }
