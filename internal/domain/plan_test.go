package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func samplePlans() []DepositPlan {
	return []DepositPlan{
		{
			Type:      PlanOneTime,
			IsEnabled: false,
			Allocations: []Allocation{
				{PortfolioName: "Growth", Amount: d(100)},
				{PortfolioName: "Bonds", Amount: d(50)},
			},
		},
		{
			Type:      PlanMonthly,
			IsEnabled: true,
			Allocations: []Allocation{
				{PortfolioName: "Growth", Amount: d(20)},
				{PortfolioName: "Bonds", Amount: d(10)},
			},
		},
	}
}

func TestParsePlanType(t *testing.T) {
	tests := []struct {
		input   string
		want    PlanType
		wantErr bool
	}{
		{"one-time", PlanOneTime, false},
		{"ONE_TIME", PlanOneTime, false},
		{" monthly ", PlanMonthly, false},
		{"MONTHLY", PlanMonthly, false},
		{"weekly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePlanType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanType_Wire(t *testing.T) {
	assert.Equal(t, "ONE_TIME", PlanOneTime.Wire())
	assert.Equal(t, "MONTHLY", PlanMonthly.Wire())
}

func TestPlanType_UnmarshalAcceptsBothLabels(t *testing.T) {
	var plans []DepositPlan
	body := `[{"type":"ONE_TIME","isEnabled":true,"allocations":[]},{"type":"monthly","isEnabled":false,"allocations":[]}]`
	require.NoError(t, json.Unmarshal([]byte(body), &plans))

	assert.Equal(t, PlanOneTime, plans[0].Type)
	assert.Equal(t, PlanMonthly, plans[1].Type)

	err := json.Unmarshal([]byte(`{"type":"yearly"}`), &DepositPlan{})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestDepositPlan_CloneIsDeep(t *testing.T) {
	orig := samplePlans()[0]
	clone := orig.Clone()

	clone.Allocations[0].PortfolioName = "Changed"
	clone.Allocations[0].Amount = d(1)
	clone.IsEnabled = true

	assert.Equal(t, "Growth", orig.Allocations[0].PortfolioName)
	assert.True(t, orig.Allocations[0].Amount.Equal(d(100)))
	assert.False(t, orig.IsEnabled)
}

func TestEnabledPlans_DoesNotMutateInput(t *testing.T) {
	plans := samplePlans()

	enabled := EnabledPlans(plans)
	require.Len(t, enabled, 1)
	assert.Equal(t, PlanMonthly, enabled[0].Type)

	enabled[0].Allocations[0].PortfolioName = "Mutated"
	assert.Equal(t, "Growth", plans[1].Allocations[0].PortfolioName)
	assert.Len(t, plans, 2)
}

func TestEnabledPlans_NoneEnabled(t *testing.T) {
	plans := samplePlans()
	plans[1].IsEnabled = false

	assert.Empty(t, EnabledPlans(plans))
}

func TestNormalizeLabels(t *testing.T) {
	wire := NormalizeLabels(samplePlans())
	require.Len(t, wire, 2)
	assert.Equal(t, "ONE_TIME", wire[0].Type)
	assert.Equal(t, "MONTHLY", wire[1].Type)

	data, err := json.Marshal(wire[1])
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"MONTHLY","isEnabled":true,"allocations":[{"portfolioName":"Growth","amount":20},{"portfolioName":"Bonds","amount":10}]}`,
		string(data))
}

func TestFindAllocation(t *testing.T) {
	plan := samplePlans()[0]
	assert.Equal(t, 1, plan.FindAllocation("Bonds"))
	assert.Equal(t, -1, plan.FindAllocation("Cash"))
}
