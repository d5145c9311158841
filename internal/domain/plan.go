// Package domain holds the deposit-plan types shared by the workspace,
// the allocation proxy and the backend client.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend and the browser both expect plain JSON numbers for amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

// PlanType identifies a deposit plan. The canonical value is the UI label.
type PlanType string

const (
	PlanOneTime PlanType = "one-time"
	PlanMonthly PlanType = "monthly"
)

// PlanTypes lists every plan type in display order.
var PlanTypes = []PlanType{PlanOneTime, PlanMonthly}

// ParsePlanType accepts both the UI label ("one-time") and the wire label ("ONE_TIME").
func ParsePlanType(s string) (PlanType, error) {
	label := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	for _, t := range PlanTypes {
		if string(t) == label {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown plan type %q", ErrValidation, s)
}

// Wire returns the label the allocation backend expects: upper case, '-' replaced by '_'.
func (t PlanType) Wire() string {
	return strings.ReplaceAll(strings.ToUpper(string(t)), "-", "_")
}

// Valid reports whether t is one of the known plan types.
func (t PlanType) Valid() bool {
	return t == PlanOneTime || t == PlanMonthly
}

// UnmarshalJSON normalises either label form to the canonical one.
func (t *PlanType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("plan type must be a string: %w", err)
	}
	parsed, err := ParsePlanType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Allocation is a single portfolio-name/amount pair within a deposit plan.
type Allocation struct {
	PortfolioName string          `json:"portfolioName"`
	Amount        decimal.Decimal `json:"amount"`
}

// DepositPlan is a named allocation strategy with an enabled flag.
type DepositPlan struct {
	Type        PlanType     `json:"type"`
	IsEnabled   bool         `json:"isEnabled"`
	Allocations []Allocation `json:"allocations"`
}

// Clone deep-copies the plan. Decimal values are immutable, so copying the slice is enough.
func (p DepositPlan) Clone() DepositPlan {
	out := p
	out.Allocations = make([]Allocation, len(p.Allocations))
	copy(out.Allocations, p.Allocations)
	return out
}

// FindAllocation returns the index of the named portfolio, or -1.
func (p DepositPlan) FindAllocation(name string) int {
	for i, a := range p.Allocations {
		if a.PortfolioName == name {
			return i
		}
	}
	return -1
}

// ClonePlans deep-copies a plan list.
func ClonePlans(plans []DepositPlan) []DepositPlan {
	if plans == nil {
		return nil
	}
	out := make([]DepositPlan, len(plans))
	for i, p := range plans {
		out[i] = p.Clone()
	}
	return out
}

// EnabledPlans returns deep copies of the enabled plans. The input is left untouched.
func EnabledPlans(plans []DepositPlan) []DepositPlan {
	out := make([]DepositPlan, 0, len(plans))
	for _, p := range plans {
		if p.IsEnabled {
			out = append(out, p.Clone())
		}
	}
	return out
}

// WirePlan is a deposit plan as sent to the allocation backend.
type WirePlan struct {
	Type        string       `json:"type"`
	IsEnabled   bool         `json:"isEnabled"`
	Allocations []Allocation `json:"allocations"`
}

// NormalizeLabels copies plans and renders every type label in wire form.
func NormalizeLabels(plans []DepositPlan) []WirePlan {
	out := make([]WirePlan, 0, len(plans))
	for _, p := range plans {
		c := p.Clone()
		out = append(out, WirePlan{
			Type:        c.Type.Wire(),
			IsEnabled:   c.IsEnabled,
			Allocations: c.Allocations,
		})
	}
	return out
}
