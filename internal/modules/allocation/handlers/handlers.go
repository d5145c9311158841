// Package handlers provides HTTP handlers for the allocation proxy and its history.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/domain"
	"github.com/aristath/fundalloc/internal/modules/allocation"
)

const (
	msgAllocationFailed = "Allocation could not be done"
	msgInvalidRequest   = "Invalid allocation request"
)

// maxBodyBytes bounds an allocation request body
const maxBodyBytes = 1 << 20

// Handler handles allocation HTTP requests
type Handler struct {
	service *allocation.Service
	runs    *allocation.Repository
	log     zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(service *allocation.Service, runs *allocation.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
		log:     log.With().Str("handler", "allocation").Logger(),
	}
}

// ErrorResponse is the body of every failed allocation call
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// HandleAllocate forwards the posted plans to the backend and relays its answer.
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	var req domain.AllocationRequest
	if err := decodeSingle(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeEnvelope(w, status, msgInvalidRequest, err)
		return
	}

	outcome, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		WriteAllocationError(w, h.log, err)
		return
	}

	WriteRaw(w, h.log, outcome.Raw)
}

// HandleListRuns returns recent allocation runs, newest first
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		runs []allocation.Run
		err  error
	)
	if ws := r.URL.Query().Get("workspace"); ws != "" {
		runs, err = h.runs.ListByWorkspace(ws, limit)
	} else {
		runs, err = h.runs.List(limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list allocation runs")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun returns a single allocation run
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runs.Get(id)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "allocation run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get allocation run")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// decodeSingle decodes exactly one JSON value from body. Trailing whitespace is
// allowed, anything else is an error.
func decodeSingle(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}

	var extra json.RawMessage
	err := dec.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return errors.New("unexpected data after the request body")
}

// WriteAllocationError maps a service error to the proxy's error envelope:
// validation problems are 400, everything else 500.
func WriteAllocationError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, message := http.StatusInternalServerError, msgAllocationFailed
	if errors.Is(err, domain.ErrValidation) {
		status, message = http.StatusBadRequest, msgInvalidRequest
	}
	writeJSON(w, log, status, ErrorResponse{Message: message, Error: err.Error()})
}

// WriteRaw writes an already-encoded JSON body with status 200.
func WriteRaw(w http.ResponseWriter, log zerolog.Logger, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("Failed to write allocation response")
	}
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, message string, err error) {
	h.writeJSON(w, status, ErrorResponse{Message: message, Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, h.log, status, data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
