// Package plans keeps deposit-plan form state as server-side workspaces.
package plans

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
)

// ErrNotAllowed marks an operation the form would not offer in the workspace's current state.
var ErrNotAllowed = errors.New("operation not allowed")

// AllocationStatus is the outcome of the last submission.
// IsOkay is nil while a submission is pending.
type AllocationStatus struct {
	IsOkay         *bool                        `json:"isOkay"`
	FundAllocation map[string]decimal.Decimal   `json:"fundAllocation,omitempty"`
	FundLedgers    []map[string]decimal.Decimal `json:"fundLedgers,omitempty"`
}

// Workspace is one deposit-plan form
type Workspace struct {
	ID              string               `json:"id"`
	Plans           []domain.DepositPlan `json:"plans"`
	CurrentPlanType domain.PlanType      `json:"currentPlanType"`
	Deposits        []decimal.Decimal    `json:"deposits"`
	Allocation      AllocationStatus     `json:"allocation"`
	LastRunID       string               `json:"lastRunId,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// NewWorkspace returns a workspace with both plans disabled and empty
func NewWorkspace(id string, now time.Time) *Workspace {
	okay := true
	plans := make([]domain.DepositPlan, 0, len(domain.PlanTypes))
	for _, t := range domain.PlanTypes {
		plans = append(plans, domain.DepositPlan{Type: t, Allocations: []domain.Allocation{}})
	}
	return &Workspace{
		ID:              id,
		Plans:           plans,
		CurrentPlanType: domain.PlanOneTime,
		Deposits:        []decimal.Decimal{},
		Allocation:      AllocationStatus{IsOkay: &okay},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (w *Workspace) plan(t domain.PlanType) (*domain.DepositPlan, error) {
	for i := range w.Plans {
		if w.Plans[i].Type == t {
			return &w.Plans[i], nil
		}
	}
	return nil, fmt.Errorf("plan %q: %w", t, domain.ErrNotFound)
}

// HasAllAllocations reports whether every plan has at least one portfolio
func (w *Workspace) HasAllAllocations() bool {
	for _, p := range w.Plans {
		if len(p.Allocations) == 0 {
			return false
		}
	}
	return len(w.Plans) > 0
}

// HasAnyAllocations reports whether some plan has at least one portfolio
func (w *Workspace) HasAnyAllocations() bool {
	for _, p := range w.Plans {
		if len(p.Allocations) > 0 {
			return true
		}
	}
	return false
}

// AddPortfolio prepends name with amount 1 to every plan
func (w *Workspace) AddPortfolio(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: portfolio name is required", domain.ErrValidation)
	}
	for _, p := range w.Plans {
		if p.FindAllocation(name) >= 0 {
			return fmt.Errorf("%w: portfolio %q already exists", domain.ErrValidation, name)
		}
	}

	for i := range w.Plans {
		allocs := make([]domain.Allocation, 0, len(w.Plans[i].Allocations)+1)
		allocs = append(allocs, domain.Allocation{PortfolioName: name, Amount: domain.MinAllocationAmount})
		w.Plans[i].Allocations = append(allocs, w.Plans[i].Allocations...)
	}
	return nil
}

// RemovePortfolio drops name from every plan
func (w *Workspace) RemovePortfolio(name string) error {
	removed := false
	for i := range w.Plans {
		if idx := w.Plans[i].FindAllocation(name); idx >= 0 {
			allocs := w.Plans[i].Allocations
			w.Plans[i].Allocations = append(allocs[:idx:idx], allocs[idx+1:]...)
			removed = true
		}
	}
	if !removed {
		return fmt.Errorf("portfolio %q: %w", name, domain.ErrNotFound)
	}

	// A plan with nothing left to allocate cannot stay enabled.
	for i := range w.Plans {
		if len(w.Plans[i].Allocations) == 0 {
			w.Plans[i].IsEnabled = false
		}
	}
	return nil
}

// SetAmount sets the amount of one portfolio in one plan
func (w *Workspace) SetAmount(t domain.PlanType, name string, amount decimal.Decimal) error {
	if amount.LessThan(domain.MinAllocationAmount) {
		return fmt.Errorf("%w: amount must be at least %s", domain.ErrValidation, domain.MinAllocationAmount)
	}
	p, err := w.plan(t)
	if err != nil {
		return err
	}
	idx := p.FindAllocation(name)
	if idx < 0 {
		return fmt.Errorf("portfolio %q in plan %q: %w", name, t, domain.ErrNotFound)
	}
	p.Allocations[idx].Amount = amount
	return nil
}

// SelectPlan makes t the plan being edited
func (w *Workspace) SelectPlan(t domain.PlanType) error {
	if _, err := w.plan(t); err != nil {
		return err
	}
	w.CurrentPlanType = t
	return nil
}

// SetPlanEnabled toggles a plan. The toggle only exists once every plan has portfolios.
func (w *Workspace) SetPlanEnabled(t domain.PlanType, enabled bool) error {
	p, err := w.plan(t)
	if err != nil {
		return err
	}
	if !w.HasAllAllocations() {
		return fmt.Errorf("%w: add a portfolio before enabling a plan", ErrNotAllowed)
	}
	p.IsEnabled = enabled
	return nil
}

// AddDeposit appends a deposit
func (w *Workspace) AddDeposit(amount decimal.Decimal) error {
	if !w.HasAnyAllocations() {
		return fmt.Errorf("%w: add a portfolio before adding deposits", ErrNotAllowed)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit must be positive", domain.ErrValidation)
	}
	w.Deposits = append(w.Deposits, amount)
	return nil
}

// ClearDeposits empties the deposit list
func (w *Workspace) ClearDeposits() {
	w.Deposits = []decimal.Decimal{}
}

// CanAllocate reports whether the form would offer the allocate button
func (w *Workspace) CanAllocate() bool {
	if !w.HasAllAllocations() || len(w.Deposits) == 0 {
		return false
	}
	for _, p := range w.Plans {
		if p.IsEnabled {
			return true
		}
	}
	return false
}

// Submission is the request the form posts: every plan, plus the deposits.
// The returned value shares nothing with w.
func (w *Workspace) Submission() domain.AllocationRequest {
	return domain.AllocationRequest{
		DepositPlans: w.Plans,
		Deposits:     append([]decimal.Decimal{}, w.Deposits...),
	}.Clone()
}

// MarkPending records that a submission is in flight
func (w *Workspace) MarkPending() {
	w.Allocation = AllocationStatus{
		FundAllocation: w.Allocation.FundAllocation,
		FundLedgers:    w.Allocation.FundLedgers,
	}
}

// MarkSucceeded stores the backend result
func (w *Workspace) MarkSucceeded(runID string, result domain.AllocationResult) {
	okay := true
	w.LastRunID = runID
	w.Allocation = AllocationStatus{
		IsOkay:         &okay,
		FundAllocation: result.FundAllocation,
		FundLedgers:    result.FundLedgers,
	}
}

// MarkFailed records a failed submission; previous results and their run id are discarded
func (w *Workspace) MarkFailed() {
	okay := false
	w.Allocation = AllocationStatus{IsOkay: &okay}
	w.LastRunID = ""
}
