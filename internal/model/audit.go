package model

import "time"

// PlanAttempt records one negotiation round with the plan generator,
// verbatim, regardless of outcome.
type PlanAttempt struct {
	Plan   QueryPlan         `json:"plan"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ExecutionSummary struct {
	RowCount  int    `json:"row_count"`
	Truncated bool   `json:"truncated"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// AuditRecord is the immutable trace of one end-user request. Records are
// append-only and never edited after creation.
type AuditRecord struct {
	RequestID        string            `json:"request_id"`
	Question         string            `json:"question"`
	PlanAttempts     []PlanAttempt     `json:"plan_attempts"`
	FinalPlan        *QueryPlan        `json:"final_plan,omitempty"`
	CompiledSQL      string            `json:"compiled_sql,omitempty"`
	ExecutionSummary *ExecutionSummary `json:"execution_summary,omitempty"`
	Error            string            `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ElapsedMS        int64             `json:"elapsed_ms"`
}
