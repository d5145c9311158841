package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks input rejected before anything is forwarded.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks lookups of unknown workspaces, portfolios or runs.
	ErrNotFound = errors.New("not found")
)

// MinAllocationAmount mirrors the form input's min="1".
var MinAllocationAmount = decimal.NewFromInt(1)

// AllocationRequest is the body posted to the proxy endpoint.
type AllocationRequest struct {
	DepositPlans []DepositPlan     `json:"depositPlans"`
	Deposits     []decimal.Decimal `json:"deposits"`
}

// WireRequest is the body forwarded to {BACKEND_API}/allocate.
type WireRequest struct {
	DepositPlans []WirePlan        `json:"depositPlans"`
	Deposits     []decimal.Decimal `json:"deposits"`
}

// AllocationResult is the backend response consumed by the form.
type AllocationResult struct {
	FundAllocation map[string]decimal.Decimal   `json:"fundAllocation"`
	FundLedgers    []map[string]decimal.Decimal `json:"fundLedgers,omitempty"`
}

// Clone deep-copies the request.
func (r AllocationRequest) Clone() AllocationRequest {
	out := AllocationRequest{DepositPlans: ClonePlans(r.DepositPlans)}
	if r.Deposits != nil {
		out.Deposits = make([]decimal.Decimal, len(r.Deposits))
		copy(out.Deposits, r.Deposits)
	}
	return out
}

// Filtered returns a deep copy keeping only enabled plans.
func (r AllocationRequest) Filtered() AllocationRequest {
	out := r.Clone()
	out.DepositPlans = EnabledPlans(r.DepositPlans)
	return out
}

// Wire renders the request in the backend's format.
func (r AllocationRequest) Wire() WireRequest {
	deposits := r.Deposits
	if deposits == nil {
		deposits = []decimal.Decimal{}
	}
	return WireRequest{
		DepositPlans: NormalizeLabels(r.DepositPlans),
		Deposits:     deposits,
	}
}

// TotalDeposits sums the deposit list.
func (r AllocationRequest) TotalDeposits() decimal.Decimal {
	total := decimal.Zero
	for _, d := range r.Deposits {
		total = total.Add(d)
	}
	return total
}

// Validate applies the checks the form enforces before submitting.
func (r AllocationRequest) Validate() error {
	if len(r.DepositPlans) == 0 {
		return fmt.Errorf("%w: at least one deposit plan is required", ErrValidation)
	}

	seenTypes := make(map[PlanType]bool, len(r.DepositPlans))
	anyEnabled := false
	for i, plan := range r.DepositPlans {
		if !plan.Type.Valid() {
			return fmt.Errorf("%w: depositPlans[%d] has unknown type %q", ErrValidation, i, plan.Type)
		}
		if seenTypes[plan.Type] {
			return fmt.Errorf("%w: duplicate deposit plan %q", ErrValidation, plan.Type)
		}
		seenTypes[plan.Type] = true
		anyEnabled = anyEnabled || plan.IsEnabled

		seenNames := make(map[string]bool, len(plan.Allocations))
		for j, a := range plan.Allocations {
			name := strings.TrimSpace(a.PortfolioName)
			if name == "" {
				return fmt.Errorf("%w: depositPlans[%d].allocations[%d] has an empty portfolio name", ErrValidation, i, j)
			}
			if seenNames[name] {
				return fmt.Errorf("%w: portfolio %q appears twice in plan %q", ErrValidation, name, plan.Type)
			}
			seenNames[name] = true
			if a.Amount.LessThan(MinAllocationAmount) {
				return fmt.Errorf("%w: amount for %q in plan %q must be at least %s", ErrValidation, name, plan.Type, MinAllocationAmount)
			}
		}
	}

	if !anyEnabled {
		return fmt.Errorf("%w: enable at least one plan to allocate the funds", ErrValidation)
	}

	if len(r.Deposits) == 0 {
		return fmt.Errorf("%w: at least one deposit is required", ErrValidation)
	}
	for i, d := range r.Deposits {
		if !d.IsPositive() {
			return fmt.Errorf("%w: deposits[%d] must be positive", ErrValidation, i)
		}
	}

	return nil
}
