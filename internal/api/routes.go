package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the document routes under prefix
func RegisterRoutes(r chi.Router, h *Handler, prefix string) {
	r.Get("/", h.Health)
	r.Route(prefix, func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Post("/query", h.Query)
		r.Delete("/reset", h.Reset)
	})
}
