package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/fundalloc/internal/database"
	"github.com/aristath/fundalloc/internal/di"
	"github.com/aristath/fundalloc/internal/scheduler"
)

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status           string                     `json:"status"`
	BackendAPI       string                     `json:"backend_api"`
	UptimeSeconds    int64                      `json:"uptime_seconds"`
	CPUPercent       float64                    `json:"cpu_percent"`
	MemoryPercent    float64                    `json:"memory_percent"`
	Databases        map[string]*database.Stats `json:"databases"`
	AllocationRuns   int                        `json:"allocation_runs"`
	EventSubscribers int                        `json:"event_subscribers"`
	BackupsEnabled   bool                       `json:"backups_enabled"`
	LastChecked      string                     `json:"last_checked"`
}

// SystemHandlers serves system status and job control
type SystemHandlers struct {
	container  *di.Container
	backendAPI string
	startedAt  time.Time
	stats      func() (float64, float64)
	log        zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(container *di.Container, backendAPI string, startedAt time.Time, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		container:  container,
		backendAPI: backendAPI,
		startedAt:  startedAt,
		log:        log.With().Str("handler", "system").Logger(),
	}
	h.stats = h.getSystemStats
	return h
}

// HandleSystemStatus returns resource usage, uptime, backend URL and database sizes
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.stats()

	response := SystemStatusResponse{
		Status:         "ok",
		BackendAPI:     h.backendAPI,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		Databases:      make(map[string]*database.Stats),
		BackupsEnabled: h.container.BackupService != nil,
		LastChecked:    time.Now().UTC().Format(time.RFC3339),
	}

	for _, db := range h.container.Databases() {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			response.Status = "degraded"
			continue
		}
		response.Databases[db.Name()] = stats
	}

	if count, err := h.container.RunRepo.Count(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count allocation runs")
		response.Status = "degraded"
	} else {
		response.AllocationRuns = count
	}

	if h.container.EventBus != nil {
		response.EventSubscribers = h.container.EventBus.SubscriberCount()
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// HandleListJobs returns every registered job with its last outcome
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.container.Scheduler.Jobs()
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleTriggerJob starts a job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.container.Scheduler.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, h.log, http.StatusNotFound, "Unknown job: "+name)
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, h.log, http.StatusConflict, "Job is already running: "+name)
		return
	case err != nil:
		h.log.Error().Err(err).Str("job", name).Msg("Failed to trigger job")
		writeError(w, h.log, http.StatusInternalServerError, "Failed to trigger job")
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")
	writeJSON(w, h.log, http.StatusAccepted, map[string]string{
		"status":  "triggered",
		"message": "Job " + name + " triggered",
	})
}

// HandleListBackups lists archives in the backup bucket, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.container.BackupService == nil {
		writeError(w, h.log, http.StatusNotFound, "Backups are not configured")
		return
	}

	backups, err := h.container.BackupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, h.log, http.StatusBadGateway, "Failed to list backups")
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the endpoint fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
