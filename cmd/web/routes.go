package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/etitcombe/logifymw"
	"github.com/google/uuid"
)

func (s *server) registerRoutes() {
	mux := http.NewServeMux()
	addIcons(mux, s.staticDir)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))

	mux.Handle("GET /{$}", s.handleList())
	mux.Handle("POST /{$}", s.handleCreate())
	mux.Handle("GET /new", s.handleNew())
	mux.Handle("GET /{id}", s.handleEdit())
	mux.Handle("POST /{id}", s.handleUpdate())
	mux.Handle("POST /{id}/delete", s.handleDelete())
	mux.Handle("DELETE /{id}", s.handleDelete())

	s.router = s.recoverPanicMw(requestIDMw(logifymw.LogIt2(s.infoLog, headersMw(mux))))
}

func addIcons(mux *http.ServeMux, dir string) {
	icons := []string{
		"/apple-touch-icon.png",
		"/favicon.ico",
	}
	for _, icon := range icons {
		addFileHandler(mux, dir, icon)
	}
}

func addFileHandler(mux *http.ServeMux, dir, file string) {
	mux.HandleFunc("GET "+file, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dir, filepath.FromSlash(file)))
	})
}

func headersMw(next http.Handler) http.Handler {
	var headers = map[string]string{
		"Content-Security-Policy": "default-src 'self'",
		"Referrer-Policy":         "same-origin",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "SAMEORIGIN",
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}

		next.ServeHTTP(w, r)
	})
}

func requestIDMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) recoverPanicMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				s.serverError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
