package main

import (
	"errors"
	"net/http"
	"strconv"

	app "github.com/etitcombe/blogpom"
	"github.com/etitcombe/blogpom/flash"
)

const maxFormBytes = 1 << 20

type listPage struct {
	Posts      []app.Post
	Pagination app.Pagination
}

type formPage struct {
	Post   app.Post
	Form   app.PostForm
	Errors map[string]string
}

type errorPage struct {
	Status int
	Text   string
}

func (s *server) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := app.ResolvePage(q.Get("page"), q.Get("postsPerPage"), s.pageConfig)

		ctx, cancel := s.storeContext(r)
		defer cancel()

		total, err := s.postStore.Count(ctx)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		posts, err := s.postStore.List(ctx, page.Offset(), page.Limit())
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		s.render(w, r, http.StatusOK, "list", "Posts", nil, listPage{
			Posts:      posts,
			Pagination: app.NewPagination(page, total),
		})
	}
}

func (s *server) handleNew() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "new", "New post", nil, formPage{})
	}
}

func (s *server) handleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := s.parsePostForm(w, r)
		if !ok {
			return
		}

		form, err := form.Validate()
		var verr *app.ValidationError
		if errors.As(err, &verr) {
			s.renderInvalid(w, r, "new", "New post", formPage{Form: form}, verr)
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		p, err := s.postStore.Create(ctx, form.Title, form.Text)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		s.logger.Debug("post created", "id", p.ID, "request_id", requestID(r))

		s.redirect(w, r, "/", flash.Success("Post successfully added."))
	}
}

func (s *server) handleEdit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(r)
		if !ok {
			s.notFound(w, r)
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		p, err := s.postStore.Get(ctx, id)
		if err != nil {
			s.storeError(w, r, err)
			return
		}

		s.render(w, r, http.StatusOK, "edit", "Edit post", nil, formPage{
			Post: p,
			Form: app.NewPostForm(p.Title, p.Text),
		})
	}
}

func (s *server) handleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(r)
		if !ok {
			s.notFound(w, r)
			return
		}
		form, ok := s.parsePostForm(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		form, err := form.Validate()
		var verr *app.ValidationError
		if errors.As(err, &verr) {
			// Only re-render the form for a post that exists.
			p, err := s.postStore.Get(ctx, id)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			s.renderInvalid(w, r, "edit", "Edit post", formPage{Post: p, Form: form}, verr)
			return
		}

		if _, err := s.postStore.Update(ctx, id, form.Title, form.Text); err != nil {
			s.storeError(w, r, err)
			return
		}

		s.redirect(w, r, "/", flash.Success("Post successfully updated."))
	}
}

func (s *server) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(r)
		if !ok {
			s.notFound(w, r)
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		if err := s.postStore.Delete(ctx, id); err != nil {
			s.storeError(w, r, err)
			return
		}

		s.redirect(w, r, "/", flash.Success("Post successfully deleted."))
	}
}

func (s *server) parsePostForm(w http.ResponseWriter, r *http.Request) (app.PostForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.clientError(w, http.StatusBadRequest, err.Error())
		return app.PostForm{}, false
	}
	return app.NewPostForm(r.PostFormValue("title"), r.PostFormValue("text")), true
}

// renderInvalid shows the form again with the submitted values and an error
// notice. Nothing has been written to the store.
func (s *server) renderInvalid(w http.ResponseWriter, r *http.Request, name, title string, page formPage, verr *app.ValidationError) {
	page.Errors = verr.Fields
	notice := flash.Error("Please correct the errors below.")
	s.render(w, r, http.StatusUnprocessableEntity, name, title, &notice, page)
}

func (s *server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, app.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	s.serverError(w, r, err)
}

func postID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
