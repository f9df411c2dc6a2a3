package main

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	app "github.com/etitcombe/blogpom"
	"github.com/etitcombe/blogpom/flash"
)

type contextKey string

const (
	requestIDHeader string = "X-Request-ID"

	requestIDKey contextKey = "request-id"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var pageTemplates = []string{"list", "new", "edit", "error"}

type server struct {
	logger   *slog.Logger
	infoLog  *log.Logger
	errorLog *log.Logger

	router http.Handler

	postStore app.PostStore
	flash     *flash.Codec

	templateCache map[string]*template.Template

	staticDir    string
	pageConfig   app.PageConfig
	storeTimeout time.Duration
}

type options struct {
	StaticDir    string
	Page         app.PageConfig
	StoreTimeout time.Duration
	Templates    fs.FS
}

type viewModel struct {
	Title string
	Flash *flash.Message
	Yield interface{}
}

// TemplateError reports a page template that failed to compile or execute.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func newServer(logger *slog.Logger, ps app.PostStore, fc *flash.Codec, opts options) (*server, error) {
	srv := &server{
		logger:       logger,
		infoLog:      slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		errorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		postStore:    ps,
		flash:        fc,
		staticDir:    opts.StaticDir,
		pageConfig:   opts.Page,
		storeTimeout: opts.StoreTimeout,
	}
	if srv.storeTimeout <= 0 {
		srv.storeTimeout = 5 * time.Second
	}
	if opts.Templates == nil {
		opts.Templates = templateFS
	}
	if err := srv.parseTemplates(opts.Templates); err != nil {
		return nil, err
	}
	srv.registerRoutes()
	return srv, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) clientError(w http.ResponseWriter, status int, message string) {
	errorMessage := http.StatusText(status)
	if message != "" {
		errorMessage += ": " + message
	}
	http.Error(w, errorMessage, status)
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound)
}

func (s *server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("server error",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID(r),
		"err", err,
		"stack", string(debug.Stack()),
	)
	s.renderError(w, r, http.StatusInternalServerError)
}

// renderError writes the error page, falling back to plain text when the
// page itself cannot be rendered.
func (s *server) renderError(w http.ResponseWriter, r *http.Request, status int) {
	buf, err := s.execute("error", viewModel{
		Title: http.StatusText(status),
		Yield: errorPage{Status: status, Text: http.StatusText(status)},
	})
	if err != nil {
		s.logger.Error("render error page", "status", status, "err", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *server) parseTemplates(fsys fs.FS) error {
	cache := map[string]*template.Template{}
	for _, name := range pageTemplates {
		ts, err := template.New(name).ParseFS(fsys, "templates/layout.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return &TemplateError{Name: name, Err: err}
		}
		cache[name] = ts
	}
	s.templateCache = cache
	return nil
}

func (s *server) execute(name string, vm viewModel) (*bytes.Buffer, error) {
	ts, ok := s.templateCache[name]
	if !ok {
		return nil, &TemplateError{Name: name, Err: fmt.Errorf("does not exist")}
	}

	buf := &bytes.Buffer{}
	if err := ts.ExecuteTemplate(buf, "layout", vm); err != nil {
		return nil, &TemplateError{Name: name, Err: err}
	}
	return buf, nil
}

// render writes the named page with status. When notice is nil the pending
// flash message, if any, is shown instead and consumed once the page has
// rendered.
func (s *server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, notice *flash.Message, data interface{}) {
	consume := notice == nil && flash.Pending(r)
	if consume {
		if msg, ok := s.flash.Read(r); ok {
			notice = &msg
		}
	}

	buf, err := s.execute(name, viewModel{
		Title: title,
		Flash: notice,
		Yield: data,
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if consume {
		flash.Clear(w, r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// redirect sends the browser to url with a one-time notice.
func (s *server) redirect(w http.ResponseWriter, r *http.Request, url string, msg flash.Message) {
	if err := s.flash.Redirect(w, r, url, msg); err != nil {
		s.serverError(w, r, err)
	}
}

// storeContext bounds a store call made on behalf of r.
func (s *server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return "-"
}
