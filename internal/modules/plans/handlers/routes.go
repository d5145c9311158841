package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers workspace routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workspaces", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)

			r.Post("/portfolios", h.HandleAddPortfolio)
			r.Delete("/portfolios/{name}", h.HandleRemovePortfolio)

			r.Put("/plans/{type}/allocations/{name}", h.HandleSetAmount)
			r.Put("/plans/{type}/enabled", h.HandleSetEnabled)
			r.Put("/current-plan", h.HandleSelectPlan)

			r.Post("/deposits", h.HandleAddDeposit)
			r.Delete("/deposits", h.HandleClearDeposits)

			r.Get("/submission", h.HandleSubmission)
			r.Post("/allocate", h.HandleAllocate)
		})
	})
}
