package models

import "time"

// RunStatus is the terminal/active state of a batch run.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// ProgressError records one failed item in a batch run.
type ProgressError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// ProgressRecord tracks one batch generation run across many scopes,
// keyed by service name. Created at batch start, updated after each
// scope, finalized at the end or on cancellation/failure.
type ProgressRecord struct {
	Service               string          `json:"service"`
	TotalItems            int             `json:"total_items"`
	ProcessedItems        int             `json:"processed_items"`
	Succeeded             int             `json:"succeeded"`
	Failed                int             `json:"failed"`
	CurrentItemID         string          `json:"current_item_id,omitempty"`
	Errors                []ProgressError `json:"errors,omitempty"`
	RunStatus             RunStatus       `json:"run_status"`
	CancellationRequested bool            `json:"cancellation_requested"`
	StartedAt             time.Time       `json:"started_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}
