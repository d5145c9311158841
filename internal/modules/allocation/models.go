package allocation

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the outcome of a forwarded allocation request
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded call to the allocation backend
type Run struct {
	ID             string          `json:"id"`
	WorkspaceID    string          `json:"workspace_id,omitempty"`
	Status         RunStatus       `json:"status"`
	Request        json.RawMessage `json:"request"`
	Response       json.RawMessage `json:"response,omitempty"`
	Error          string          `json:"error,omitempty"`
	UpstreamStatus int             `json:"upstream_status,omitempty"`
	PlanCount      int             `json:"plan_count"`
	DepositCount   int             `json:"deposit_count"`
	TotalDeposits  decimal.Decimal `json:"total_deposits"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}
