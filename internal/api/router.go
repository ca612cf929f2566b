package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/annotree/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(sess *session.Session, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sess)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Coordinate reads.
	r.Get("/header", h.Header)
	r.Get("/nodes", h.GetNode)
	r.Get("/children", h.Children)
	r.Get("/data", h.Data)
	r.Get("/image", h.Image)

	// Media navigation.
	r.Get("/media", h.Media)
	r.Get("/next", h.Next)
	r.Get("/previous", h.Previous)

	// Mutations.
	r.Post("/annotations", h.AddAnnotation)
	r.Put("/annotations", h.UpdateAnnotation)
	r.Patch("/annotations", h.SetAnnotationValue)
	r.Delete("/annotations", h.RemoveAnnotation)
	r.Post("/files", h.InsertFile)

	// Project.
	r.Get("/status", h.Status)
	r.Put("/basedir", h.SetBaseDir)
	r.Get("/corpus", h.Corpus)
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
