package plans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
	"github.com/aristath/fundalloc/internal/events"
	"github.com/aristath/fundalloc/internal/modules/allocation"
)

// Allocator forwards a workspace submission
type Allocator interface {
	AllocateFor(ctx context.Context, workspaceID string, req domain.AllocationRequest) (*allocation.Outcome, error)
}

// Publisher receives workspace events
type Publisher interface {
	Publish(data events.EventData)
}

// Store persists workspaces
type Store interface {
	Create(ws *Workspace) error
	Update(ws *Workspace) error
	Get(id string) (*Workspace, error)
	List() ([]*Workspace, error)
	Delete(id string) error
}

// Service applies form operations to stored workspaces.
// Every mutation is load, apply, save and publish under one lock.
type Service struct {
	mu        sync.Mutex
	store     Store
	allocator Allocator
	events    Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new workspace service. events may be nil.
func NewService(store Store, allocator Allocator, events Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		allocator: allocator,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("service", "plans").Logger(),
	}
}

// Create makes a new empty workspace
func (s *Service) Create() (*Workspace, error) {
	ws := NewWorkspace(uuid.NewString(), s.now())
	if err := s.store.Create(ws); err != nil {
		return nil, err
	}
	s.publish(ws.ID, "created")
	s.log.Info().Str("workspace_id", ws.ID).Msg("Workspace created")
	return ws, nil
}

// Get returns a workspace
func (s *Service) Get(id string) (*Workspace, error) {
	return s.store.Get(id)
}

// List returns every workspace
func (s *Service) List() ([]*Workspace, error) {
	return s.store.List()
}

// Delete removes a workspace
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.publish(id, "deleted")
	return nil
}

// AddPortfolio adds a portfolio to every plan
func (s *Service) AddPortfolio(id, name string) (*Workspace, error) {
	return s.mutate(id, "portfolio_added", func(ws *Workspace) error {
		return ws.AddPortfolio(name)
	})
}

// RemovePortfolio removes a portfolio from every plan
func (s *Service) RemovePortfolio(id, name string) (*Workspace, error) {
	return s.mutate(id, "portfolio_removed", func(ws *Workspace) error {
		return ws.RemovePortfolio(name)
	})
}

// SetAmount sets a portfolio amount in one plan
func (s *Service) SetAmount(id string, t domain.PlanType, name string, amount decimal.Decimal) (*Workspace, error) {
	return s.mutate(id, "amount_changed", func(ws *Workspace) error {
		return ws.SetAmount(t, name, amount)
	})
}

// SelectPlan switches the plan being edited
func (s *Service) SelectPlan(id string, t domain.PlanType) (*Workspace, error) {
	return s.mutate(id, "plan_selected", func(ws *Workspace) error {
		return ws.SelectPlan(t)
	})
}

// SetPlanEnabled toggles a plan
func (s *Service) SetPlanEnabled(id string, t domain.PlanType, enabled bool) (*Workspace, error) {
	return s.mutate(id, "plan_toggled", func(ws *Workspace) error {
		return ws.SetPlanEnabled(t, enabled)
	})
}

// AddDeposit appends a deposit
func (s *Service) AddDeposit(id string, amount decimal.Decimal) (*Workspace, error) {
	return s.mutate(id, "deposit_added", func(ws *Workspace) error {
		return ws.AddDeposit(amount)
	})
}

// ClearDeposits empties the deposit list
func (s *Service) ClearDeposits(id string) (*Workspace, error) {
	return s.mutate(id, "deposits_cleared", func(ws *Workspace) error {
		ws.ClearDeposits()
		return nil
	})
}

// Submission returns the body the form would post
func (s *Service) Submission(id string) (domain.AllocationRequest, error) {
	ws, err := s.store.Get(id)
	if err != nil {
		return domain.AllocationRequest{}, err
	}
	return ws.Submission(), nil
}

// Allocate submits the workspace to the allocation service and stores the outcome.
// The lock is not held while the backend is working.
func (s *Service) Allocate(ctx context.Context, id string) (*Workspace, error) {
	var req domain.AllocationRequest
	_, err := s.mutate(id, "allocation_pending", func(ws *Workspace) error {
		if !ws.CanAllocate() {
			return fmt.Errorf("%w: add portfolios, a deposit and enable a plan first", ErrNotAllowed)
		}
		req = ws.Submission()
		ws.MarkPending()
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome, allocErr := s.allocator.AllocateFor(ctx, id, req)

	action := "allocation_succeeded"
	if allocErr != nil {
		action = "allocation_failed"
	}
	ws, err := s.mutate(id, action, func(ws *Workspace) error {
		if allocErr != nil {
			ws.MarkFailed()
			return nil
		}
		ws.MarkSucceeded(outcome.RunID, outcome.Result)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Str("workspace_id", id).Msg("Workspace deleted while allocating")
		}
		return nil, err
	}

	return ws, allocErr
}

func (s *Service) mutate(id, action string, apply func(ws *Workspace) error) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := apply(ws); err != nil {
		return nil, err
	}
	ws.UpdatedAt = s.now()
	if err := s.store.Update(ws); err != nil {
		return nil, err
	}

	s.publish(id, action)
	s.log.Debug().Str("workspace_id", id).Str("action", action).Msg("Workspace updated")
	return ws, nil
}

func (s *Service) publish(id, action string) {
	if s.events != nil {
		s.events.Publish(&events.WorkspaceChangedData{WorkspaceID: id, Action: action})
	}
}
