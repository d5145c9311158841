// Package allocation forwards deposit plans to the external allocation
// backend and keeps a history of every forwarded request.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/clients/allocator"
	"github.com/aristath/fundalloc/internal/domain"
	"github.com/aristath/fundalloc/internal/events"
)

// Backend is the subset of the allocator client the service needs
type Backend interface {
	Allocate(ctx context.Context, req domain.AllocationRequest) (*allocator.Response, error)
}

// RunStore persists allocation runs
type RunStore interface {
	Insert(run *Run) error
}

// Publisher receives allocation events
type Publisher interface {
	Publish(data events.EventData)
}

// Outcome is a successful allocation
type Outcome struct {
	RunID  string
	Raw    json.RawMessage // backend body, relayed verbatim
	Result domain.AllocationResult
}

// Service validates, filters and forwards allocation requests
type Service struct {
	backend Backend
	runs    RunStore
	events  Publisher
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a new allocation service. events may be nil.
func NewService(backend Backend, runs RunStore, events Publisher, log zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		runs:    runs,
		events:  events,
		now:     time.Now,
		log:     log.With().Str("service", "allocation").Logger(),
	}
}

// Allocate forwards req for an ad-hoc caller
func (s *Service) Allocate(ctx context.Context, req domain.AllocationRequest) (*Outcome, error) {
	return s.AllocateFor(ctx, "", req)
}

// AllocateFor forwards req on behalf of a workspace.
//
// The request is validated, then deep-copied with disabled plans removed and
// plan labels rendered in wire form; req itself is never modified.
// Validation failures wrap domain.ErrValidation and are not recorded.
// Backend failures are returned as *allocator.UpstreamError.
func (s *Service) AllocateFor(ctx context.Context, workspaceID string, req domain.AllocationRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	filtered := req.Filtered()
	wire, err := json.Marshal(filtered.Wire())
	if err != nil {
		return nil, fmt.Errorf("failed to encode allocation request: %w", err)
	}

	run := &Run{
		ID:            uuid.NewString(),
		WorkspaceID:   workspaceID,
		Request:       wire,
		PlanCount:     len(filtered.DepositPlans),
		DepositCount:  len(filtered.Deposits),
		TotalDeposits: filtered.TotalDeposits(),
		CreatedAt:     s.now().UTC(),
	}

	start := time.Now()
	resp, err := s.backend.Allocate(ctx, filtered)
	run.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		var upstream *allocator.UpstreamError
		if errors.As(err, &upstream) {
			run.UpstreamStatus = upstream.StatusCode
		}
		s.record(run)
		s.publish(&events.AllocationFailedData{
			RunID:          run.ID,
			WorkspaceID:    workspaceID,
			Error:          run.Error,
			UpstreamStatus: run.UpstreamStatus,
		})
		s.log.Error().
			Err(err).
			Str("run_id", run.ID).
			Int64("duration_ms", run.DurationMs).
			Msg("Allocation could not be done")
		return nil, err
	}

	run.Status = RunSucceeded
	run.Response = resp.Raw
	run.UpstreamStatus = resp.StatusCode
	s.record(run)

	fund := make(map[string]string, len(resp.Result.FundAllocation))
	for name, amount := range resp.Result.FundAllocation {
		fund[name] = amount.String()
	}
	s.publish(&events.AllocationCompletedData{
		RunID:          run.ID,
		WorkspaceID:    workspaceID,
		PlanCount:      run.PlanCount,
		DepositCount:   run.DepositCount,
		TotalDeposits:  run.TotalDeposits.String(),
		FundAllocation: fund,
		DurationMs:     run.DurationMs,
	})

	s.log.Info().
		Str("run_id", run.ID).
		Int("plans", run.PlanCount).
		Int("deposits", run.DepositCount).
		Str("total", run.TotalDeposits.String()).
		Int64("duration_ms", run.DurationMs).
		Msg("Allocation completed")

	return &Outcome{RunID: run.ID, Raw: resp.Raw, Result: resp.Result}, nil
}

// record stores the run. History is best effort and never fails an allocation.
func (s *Service) record(run *Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Insert(run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record allocation run")
	}
}

func (s *Service) publish(data events.EventData) {
	if s.events != nil {
		s.events.Publish(data)
	}
}
