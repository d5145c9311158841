package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// WorkspaceChangedData contains data for WorkspaceChanged events
type WorkspaceChangedData struct {
	WorkspaceID string `json:"workspace_id"`
	Action      string `json:"action"` // e.g. "portfolio_added", "deposit_added", "deleted"
}

// EventType returns the event type for WorkspaceChangedData
func (d *WorkspaceChangedData) EventType() EventType {
	return WorkspaceChanged
}

// AllocationCompletedData contains data for AllocationCompleted events
type AllocationCompletedData struct {
	RunID          string            `json:"run_id"`
	WorkspaceID    string            `json:"workspace_id,omitempty"`
	PlanCount      int               `json:"plan_count"`
	DepositCount   int               `json:"deposit_count"`
	TotalDeposits  string            `json:"total_deposits"`
	FundAllocation map[string]string `json:"fund_allocation,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
}

// EventType returns the event type for AllocationCompletedData
func (d *AllocationCompletedData) EventType() EventType {
	return AllocationCompleted
}

// AllocationFailedData contains data for AllocationFailed events
type AllocationFailedData struct {
	RunID          string `json:"run_id"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// EventType returns the event type for AllocationFailedData
func (d *AllocationFailedData) EventType() EventType {
	return AllocationFailed
}

// JobCompletedData contains data for JobCompleted events
type JobCompletedData struct {
	Job        string `json:"job"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// EventType returns the event type for JobCompletedData
func (d *JobCompletedData) EventType() EventType {
	return JobCompleted
}
