package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the proxy endpoint and the history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/allocate", h.HandleAllocate)

	r.Route("/allocations", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
	})
}
