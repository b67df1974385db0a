package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sidenote/internal/document"
	"github.com/starford/sidenote/internal/editor"
)

// Handler holds API route handlers.
type Handler struct {
	session *editor.Session
}

// NewHandler creates a new Handler.
func NewHandler(session *editor.Session) *Handler {
	return &Handler{session: session}
}

// Tree handles GET /api/tree.
//
//	@Summary		Workspace file tree
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.session.Tree()
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nodes})
}

// GetDocument handles GET /api/document.
//
//	@Summary		Current document with annotations and anchors
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// OpenDocument handles POST /api/document/open.
//
//	@Summary		Open a document, saving the current one first
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Document to open"
//	@Success		200		{object}	DocumentResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/open [post]
func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := h.session.Open(r.Context(), req.Path)
	if err != nil {
		writeError(w, "open document", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CloseDocument handles POST /api/document/close.
//
//	@Summary		Save and close the current document
//	@Tags			document
//	@Success		204	"Document closed"
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/close [post]
func (h *Handler) CloseDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Close(r.Context()); err != nil {
		writeError(w, "close document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetText handles PUT /api/document/text.
//
//	@Summary		Replace the document text
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TextRequest	true	"New text"
//	@Success		200		{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document/text [put]
func (h *Handler) SetText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.session.SetText(*req.Text); err != nil {
		writeError(w, "set text", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// SaveDocument handles POST /api/document/save.
//
//	@Summary		Save pending edits now
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/save [post]
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Save(r.Context()); err != nil {
		writeError(w, "save document", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// SetMode handles PUT /api/document/mode.
//
//	@Summary		Set or toggle the view mode
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ModeRequest	true	"Mode; empty toggles"
//	@Success		200		{object}	ModeResponse
//	@Security		BearerAuth
//	@Router			/document/mode [put]
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		writeJSON(w, http.StatusOK, ModeResponse{Mode: h.session.ToggleMode()})
		return
	}
	m, err := document.ParseMode(req.Mode)
	if err != nil {
		writeError(w, "set mode", err)
		return
	}
	h.session.SetMode(m)
	writeJSON(w, http.StatusOK, ModeResponse{Mode: m})
}

// CreateAnnotation handles POST /api/document/annotations.
//
//	@Summary		Annotate a range of the document
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotateRequest	true	"Range and comment"
//	@Success		201		{object}	AnnotationResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/annotations [post]
func (h *Handler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.session.Annotate(req.Start, req.End, req.Comment)
	if err != nil {
		writeError(w, "annotate", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAnnotation handles PATCH /api/document/annotations/{id}.
//
//	@Summary		Change an annotation comment
//	@Tags			annotations
//	@Accept			json
//	@Param			id		path	string			true	"Annotation id"
//	@Param			body	body	CommentRequest	true	"New comment"
//	@Success		204		"Annotation updated"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/annotations/{id} [patch]
func (h *Handler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.session.UpdateAnnotation(chi.URLParam(r, "id"), *req.Comment); err != nil {
		writeError(w, "update annotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAnnotation handles DELETE /api/document/annotations/{id}.
//
//	@Summary		Remove an annotation
//	@Tags			annotations
//	@Param			id	path	string	true	"Annotation id"
//	@Success		204	"Annotation removed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/annotations/{id} [delete]
func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RemoveAnnotation(chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove annotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveConflict handles POST /api/document/conflict.
//
//	@Summary		Resolve an external change conflict
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConflictRequest	true	"reload or keep"
//	@Success		200		{object}	DocumentResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/conflict [post]
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req ConflictRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := document.ParseResolution(req.Resolution)
	if err != nil {
		writeError(w, "resolve conflict", err)
		return
	}
	if err := h.session.ResolveConflict(r.Context(), res); err != nil {
		if errors.Is(err, document.ErrNoConflict) {
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
			return
		}
		writeError(w, "resolve conflict", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// SearchAnnotations handles GET /api/annotations/search.
//
//	@Summary		Search annotations across the workspace
//	@Tags			annotations
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/search [get]
func (h *Handler) SearchAnnotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.session.SearchAnnotations(q, limit)
	if err != nil {
		writeError(w, "search annotations", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}

// Recent handles GET /api/recent.
//
//	@Summary		Recently used workspaces
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	RecentResponse
//	@Security		BearerAuth
//	@Router			/recent [get]
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	list, err := h.session.Recent()
	if err != nil {
		writeError(w, "recent", err)
		return
	}
	writeJSON(w, http.StatusOK, RecentResponse{Projects: list})
}
