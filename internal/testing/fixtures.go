package testing

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
)

// NewPlanFixtures returns both plans with two portfolios each; only the monthly plan is enabled.
func NewPlanFixtures() []domain.DepositPlan {
	return []domain.DepositPlan{
		{
			Type:      domain.PlanOneTime,
			IsEnabled: false,
			Allocations: []domain.Allocation{
				{PortfolioName: "Growth", Amount: decimal.NewFromInt(100)},
				{PortfolioName: "Bonds", Amount: decimal.NewFromInt(50)},
			},
		},
		{
			Type:      domain.PlanMonthly,
			IsEnabled: true,
			Allocations: []domain.Allocation{
				{PortfolioName: "Growth", Amount: decimal.NewFromInt(30)},
				{PortfolioName: "Bonds", Amount: decimal.NewFromInt(10)},
			},
		},
	}
}

// NewRequestFixture returns a valid allocation request built on NewPlanFixtures.
func NewRequestFixture() domain.AllocationRequest {
	return domain.AllocationRequest{
		DepositPlans: NewPlanFixtures(),
		Deposits:     []decimal.Decimal{decimal.NewFromInt(400), decimal.NewFromInt(200)},
	}
}
