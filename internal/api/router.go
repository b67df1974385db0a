package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sidenote/internal/editor"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(session *editor.Session, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(session)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/tree", h.Tree)
	r.Get("/recent", h.Recent)

	r.Route("/document", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Post("/open", h.OpenDocument)
		r.Post("/close", h.CloseDocument)
		r.Put("/text", h.SetText)
		r.Post("/save", h.SaveDocument)
		r.Put("/mode", h.SetMode)
		r.Post("/conflict", h.ResolveConflict)

		r.Post("/annotations", h.CreateAnnotation)
		r.Patch("/annotations/{id}", h.UpdateAnnotation)
		r.Delete("/annotations/{id}", h.DeleteAnnotation)
	})

	r.Get("/annotations/search", h.SearchAnnotations)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
