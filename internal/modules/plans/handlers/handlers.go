// Package handlers provides HTTP handlers for deposit-plan workspaces.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
	allochandlers "github.com/aristath/fundalloc/internal/modules/allocation/handlers"
	"github.com/aristath/fundalloc/internal/modules/plans"
)

// Handler handles workspace HTTP requests
type Handler struct {
	service *plans.Service
	log     zerolog.Logger
}

// NewHandler creates a new workspace handler
func NewHandler(service *plans.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "plans").Logger(),
	}
}

type portfolioRequest struct {
	Name string `json:"name"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type currentPlanRequest struct {
	Type domain.PlanType `json:"type"`
}

// HandleCreate creates a workspace
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ws, err := h.service.Create()
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ws)
}

// HandleList returns every workspace
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List()
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": list,
		"count":      len(list),
	})
}

// HandleGet returns one workspace
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ws)
}

// HandleDelete removes a workspace
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddPortfolio adds a portfolio to both plans
func (h *Handler) HandleAddPortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, err)
		return
	}
	h.respond(w)(h.service.AddPortfolio(chi.URLParam(r, "id"), req.Name))
}

// HandleRemovePortfolio removes a portfolio from both plans
func (h *Handler) HandleRemovePortfolio(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.service.RemovePortfolio(chi.URLParam(r, "id"), pathParam(r, "name")))
}

// HandleSetAmount sets the amount of one portfolio in one plan
func (h *Handler) HandleSetAmount(w http.ResponseWriter, r *http.Request) {
	planType, err := domain.ParsePlanType(chi.URLParam(r, "type"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, err)
		return
	}
	if req.Amount == nil {
		h.handleError(w, fmt.Errorf("%w: amount is required", domain.ErrValidation))
		return
	}
	h.respond(w)(h.service.SetAmount(chi.URLParam(r, "id"), planType, pathParam(r, "name"), *req.Amount))
}

// HandleSetEnabled toggles a plan
func (h *Handler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	planType, err := domain.ParsePlanType(chi.URLParam(r, "type"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	var req enabledRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, err)
		return
	}
	if req.Enabled == nil {
		h.handleError(w, fmt.Errorf("%w: enabled is required", domain.ErrValidation))
		return
	}
	h.respond(w)(h.service.SetPlanEnabled(chi.URLParam(r, "id"), planType, *req.Enabled))
}

// HandleSelectPlan switches the plan being edited
func (h *Handler) HandleSelectPlan(w http.ResponseWriter, r *http.Request) {
	var req currentPlanRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, err)
		return
	}
	if req.Type == "" {
		h.handleError(w, fmt.Errorf("%w: type is required", domain.ErrValidation))
		return
	}
	h.respond(w)(h.service.SelectPlan(chi.URLParam(r, "id"), req.Type))
}

// HandleAddDeposit appends a deposit
func (h *Handler) HandleAddDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, err)
		return
	}
	if req.Amount == nil {
		h.handleError(w, fmt.Errorf("%w: amount is required", domain.ErrValidation))
		return
	}
	h.respond(w)(h.service.AddDeposit(chi.URLParam(r, "id"), *req.Amount))
}

// HandleClearDeposits empties the deposit list
func (h *Handler) HandleClearDeposits(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.service.ClearDeposits(chi.URLParam(r, "id")))
}

// HandleSubmission returns the body the form would post, labels in wire form
func (h *Handler) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Submission(chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req.Wire())
}

// HandleAllocate submits the workspace and returns it with the stored outcome
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	ws, err := h.service.Allocate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if ws != nil {
			// The failure is recorded on the workspace; report it like the proxy does.
			allochandlers.WriteAllocationError(w, h.log, err)
			return
		}
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) respond(w http.ResponseWriter) func(*plans.Workspace, error) {
	return func(ws *plans.Workspace, err error) {
		if err != nil {
			h.handleError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, ws)
	}
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, plans.ErrNotAllowed):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("Workspace request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}

// pathParam returns a decoded route parameter. chi matches on RawPath when the
// request has one, so only then is the value still escaped.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if s, err := url.PathUnescape(v); err == nil {
		return s
	}
	return v
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
