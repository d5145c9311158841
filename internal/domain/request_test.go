package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() AllocationRequest {
	return AllocationRequest{
		DepositPlans: samplePlans(),
		Deposits:     []decimal.Decimal{d(500), decimal.RequireFromString("120.50")},
	}
}

func TestAllocationRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *AllocationRequest)
		wantErr string
	}{
		{"valid", func(r *AllocationRequest) {}, ""},
		{"no plans", func(r *AllocationRequest) { r.DepositPlans = nil }, "at least one deposit plan"},
		{"unknown type", func(r *AllocationRequest) { r.DepositPlans[0].Type = "weekly" }, "unknown type"},
		{"duplicate type", func(r *AllocationRequest) { r.DepositPlans[0].Type = PlanMonthly }, "duplicate deposit plan"},
		{"blank portfolio", func(r *AllocationRequest) { r.DepositPlans[1].Allocations[0].PortfolioName = "  " }, "empty portfolio name"},
		{"duplicate portfolio", func(r *AllocationRequest) { r.DepositPlans[1].Allocations[1].PortfolioName = "Growth" }, "appears twice"},
		{"amount below one", func(r *AllocationRequest) {
			r.DepositPlans[1].Allocations[0].Amount = decimal.RequireFromString("0.5")
		}, "at least 1"},
		{"none enabled", func(r *AllocationRequest) { r.DepositPlans[1].IsEnabled = false }, "enable at least one plan"},
		{"no deposits", func(r *AllocationRequest) { r.Deposits = nil }, "at least one deposit"},
		{"zero deposit", func(r *AllocationRequest) { r.Deposits[1] = decimal.Zero }, "deposits[1]"},
		{"negative deposit", func(r *AllocationRequest) { r.Deposits[0] = d(-5) }, "deposits[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllocationRequest_FilteredDoesNotMutate(t *testing.T) {
	req := validRequest()

	filtered := req.Filtered()
	require.Len(t, filtered.DepositPlans, 1)
	assert.Equal(t, PlanMonthly, filtered.DepositPlans[0].Type)
	assert.Len(t, filtered.Deposits, 2)

	filtered.Deposits[0] = d(1)
	assert.Len(t, req.DepositPlans, 2)
	assert.True(t, req.Deposits[0].Equal(d(500)))
}

func TestAllocationRequest_WireJSON(t *testing.T) {
	data, err := json.Marshal(validRequest().Filtered().Wire())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"depositPlans": [
			{"type":"MONTHLY","isEnabled":true,"allocations":[
				{"portfolioName":"Growth","amount":20},
				{"portfolioName":"Bonds","amount":10}
			]}
		],
		"deposits": [500, 120.5]
	}`, string(data))
}

func TestAllocationRequest_WireEmptyDepositsIsArray(t *testing.T) {
	data, err := json.Marshal(AllocationRequest{}.Wire())
	require.NoError(t, err)
	assert.JSONEq(t, `{"depositPlans":[],"deposits":[]}`, string(data))
}

func TestAllocationRequest_TotalDeposits(t *testing.T) {
	assert.Equal(t, "620.5", validRequest().TotalDeposits().String())
}

func TestAllocationResult_Decode(t *testing.T) {
	var res AllocationResult
	body := `{"fundAllocation":{"Growth":120,"Bonds":"60.25"},"fundLedgers":[{"Growth":100},{"Growth":20}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &res))

	assert.Equal(t, "120", res.FundAllocation["Growth"].String())
	assert.Equal(t, "60.25", res.FundAllocation["Bonds"].String())
	require.Len(t, res.FundLedgers, 2)
	assert.Equal(t, "20", res.FundLedgers[1]["Growth"].String())
}
