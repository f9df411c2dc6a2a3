package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/etitcombe/blogpom"
	"github.com/etitcombe/blogpom/db"
	"github.com/etitcombe/blogpom/flash"
)

type testApp struct {
	ts     *httptest.Server
	client *http.Client
	store  app.PostStore
}

func newTestServer(t *testing.T, store app.PostStore) *server {
	t.Helper()
	return newTestServerWithTimeout(t, store, time.Second)
}

func newTestServerWithTimeout(t *testing.T, store app.PostStore, timeout time.Duration) *server {
	t.Helper()

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "hello.txt"), []byte("hello static"), 0600))

	var key [32]byte
	copy(key[:], "handlers-test-key-handlers-test!")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := newServer(logger, store, flash.NewCodec(key), options{
		StaticDir:    staticDir,
		Page:         app.DefaultPageConfig,
		StoreTimeout: timeout,
	})
	require.NoError(t, err)
	return srv
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store, err := db.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return newTestAppWithStore(t, store)
}

func newTestAppWithStore(t *testing.T, store app.PostStore) *testApp {
	t.Helper()

	ts := httptest.NewServer(newTestServer(t, store))
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{ts: ts, client: &http.Client{Jar: jar}, store: store}
}

func (a *testApp) do(t *testing.T, method, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, a.ts.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	return a.do(t, http.MethodGet, path, nil)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	return a.do(t, http.MethodPost, path, form)
}

func postValues(title, text string) url.Values {
	return url.Values{"title": {title}, "text": {text}}
}

func TestCreateRedirectsWithFlash(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.post(t, "/", postValues("Hello", "World"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path, "expected redirect to the list")
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "Post successfully added.")

	// The notice was consumed by the page it landed on.
	_, body = a.get(t, "/")
	assert.Contains(t, body, "Hello")
	assert.NotContains(t, body, "Post successfully added.")
}

func TestCreateDoesNotFollowAutomatically(t *testing.T) {
	a := newTestApp(t)
	a.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, _ := a.post(t, "/", postValues("Hello", "World"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == flash.CookieName {
			found = true
		}
	}
	assert.True(t, found, "redirect should carry the flash cookie")
}

func TestCreateInvalidRerendersForm(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.post(t, "/", postValues("   ", "keep me"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Title is required.")
	assert.Contains(t, body, "Please correct the errors below.")
	assert.Contains(t, body, "keep me")
	assert.Contains(t, body, "flash-error")

	n, err := a.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListDefaultPage(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		_, err := a.store.Create(ctx, fmt.Sprintf("post-%02d", i), "text")
		require.NoError(t, err)
	}

	resp, body := a.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for i := 3; i <= 7; i++ {
		assert.Contains(t, body, fmt.Sprintf("post-%02d", i))
	}
	assert.NotContains(t, body, "post-02")
	assert.NotContains(t, body, "post-01")
	assert.Less(t, strings.Index(body, "post-07"), strings.Index(body, "post-03"), "newest first")
	assert.Contains(t, body, "Page 1 of 2")
}

func TestListPagination(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		_, err := a.store.Create(ctx, fmt.Sprintf("post-%02d", i), "text")
		require.NoError(t, err)
	}

	_, body := a.get(t, "/?page=2&postsPerPage=3")
	assert.Contains(t, body, "post-04")
	assert.Contains(t, body, "post-02")
	assert.NotContains(t, body, "post-05")
	assert.NotContains(t, body, "post-01")
	assert.Contains(t, body, "Page 2 of 3")
	assert.Contains(t, body, `rel="prev"`)
	assert.Contains(t, body, `rel="next"`)

	resp, body := a.get(t, "/?page=nope&postsPerPage=-3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "post-07")
	assert.Contains(t, body, "Page 1 of 2")

	resp, body = a.get(t, "/?page=40")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "No posts yet.")
}

func TestEditMissingPost(t *testing.T) {
	a := newTestApp(t)

	for _, path := range []string{"/999999", "/0", "/abc"} {
		resp, body := a.get(t, path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Contains(t, body, "Not Found", path)
	}
}

func TestUpdateThenEditShowsNewText(t *testing.T) {
	a := newTestApp(t)
	p, err := a.store.Create(context.Background(), "Title", "old text")
	require.NoError(t, err)
	path := fmt.Sprintf("/%d", p.ID)

	resp, body := a.get(t, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "old text")

	resp, body = a.post(t, path, postValues("Title", "new text"))
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "Post successfully updated.")

	_, body = a.get(t, path)
	assert.Contains(t, body, "new text")
	assert.NotContains(t, body, "old text")
}

func TestUpdateInvalid(t *testing.T) {
	a := newTestApp(t)
	p, err := a.store.Create(context.Background(), "Title", "text")
	require.NoError(t, err)

	resp, body := a.post(t, fmt.Sprintf("/%d", p.ID), postValues("New", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Text is required.")
	assert.Contains(t, body, fmt.Sprintf(`action="/%d"`, p.ID))

	got, err := a.store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title", got.Title)
}

func TestUpdateMissingPost(t *testing.T) {
	a := newTestApp(t)

	resp, _ := a.post(t, "/999999", postValues("Title", "text"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// An invalid form for a missing post is still a missing post.
	resp, body := a.post(t, "/999999", postValues("", ""))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotContains(t, body, "Title is required.")
}

func TestDelete(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	p, err := a.store.Create(ctx, "Doomed", "post")
	require.NoError(t, err)
	path := fmt.Sprintf("/%d", p.ID)

	resp, body := a.post(t, path+"/delete", nil)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "Post successfully deleted.")
	assert.NotContains(t, body, "Doomed")

	resp, _ = a.get(t, path)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.post(t, path+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteMethod(t *testing.T) {
	a := newTestApp(t)
	p, err := a.store.Create(context.Background(), "Doomed", "post")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodDelete, fmt.Sprintf("/%d", p.ID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Post successfully deleted.")

	_, err = a.store.Get(context.Background(), p.ID)
	assert.ErrorIs(t, err, app.ErrNotFound)
}

func TestNewForm(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.get(t, "/new")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<form action="/" method="post">`)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestMethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	resp, _ := a.do(t, http.MethodPut, "/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatic(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.get(t, "/static/hello.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello static", body)

	resp, body = a.get(t, "/static/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "hello.txt")

	resp, _ = a.get(t, "/favicon.ico")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponseHeaders(t *testing.T) {
	a := newTestApp(t)

	resp, _ := a.get(t, "/")
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	req, err := http.NewRequest(http.MethodGet, a.ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err = a.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

// brokenStore fails every call the way an unreachable database would.
type brokenStore struct {
	panics bool
}

var errBroken = &app.StorageError{Op: "test", Err: errors.New("connection refused")}

func (s brokenStore) List(context.Context, int, int) ([]app.Post, error) {
	if s.panics {
		panic("boom")
	}
	return nil, errBroken
}
func (brokenStore) Count(context.Context) (int, error)            { return 0, nil }
func (brokenStore) Get(context.Context, int64) (app.Post, error) { return app.Post{}, errBroken }
func (brokenStore) Create(context.Context, string, string) (app.Post, error) {
	return app.Post{}, errBroken
}
func (brokenStore) Update(context.Context, int64, string, string) (app.Post, error) {
	return app.Post{}, errBroken
}
func (brokenStore) Delete(context.Context, int64) error { return errBroken }

func TestStorageErrorsAre500(t *testing.T) {
	a := newTestAppWithStore(t, brokenStore{})
	a.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, body := a.get(t, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Internal Server Error")
	assert.NotContains(t, body, "connection refused")

	resp, _ = a.get(t, "/1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// A failed write never reports success.
	resp, _ = a.post(t, "/", postValues("Hello", "World"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	resp, _ = a.post(t, "/1", postValues("Hello", "World"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = a.post(t, "/1/delete", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPanicIsRecovered(t *testing.T) {
	a := newTestAppWithStore(t, brokenStore{panics: true})

	resp, _ := a.get(t, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The server is still serving.
	resp, _ = a.get(t, "/new")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// slowStore never answers List before its context ends.
type slowStore struct {
	brokenStore
}

func (slowStore) List(ctx context.Context, offset, limit int) ([]app.Post, error) {
	<-ctx.Done()
	return nil, app.StorageErr("list posts", ctx.Err())
}

func TestStoreTimeoutIs500(t *testing.T) {
	srv := newTestServerWithTimeout(t, slowStore{}, 20*time.Millisecond)

	start := time.Now()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
}
