package dto

import "power-text2sql-backend/internal/model"

// DataPreview is the capped slice of result rows returned to the client.
type DataPreview struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
}

// ErrorInfo is the structured failure surfaced to the client when the
// pipeline could not produce a result.
type ErrorInfo struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// DebugTrail exposes the full negotiation history so a failed or suspicious
// answer can be diagnosed without reading server logs.
type DebugTrail struct {
	Attempts         []model.PlanAttempt     `json:"attempts"`
	ValidationErrors []model.ValidationError `json:"validation_errors,omitempty"`
	QualityFindings  []model.QualityFinding  `json:"quality_findings,omitempty"`
}

// QueryResponse is the body of POST /api/v1/query. A failed pipeline still
// answers 200 with Success=false and a populated debug trail.
type QueryResponse struct {
	RequestID   string           `json:"request_id"`
	Success     bool             `json:"success"`
	PlanDSL     *model.QueryPlan `json:"plan_dsl,omitempty"`
	SQL         string           `json:"sql,omitempty"`
	DataPreview *DataPreview     `json:"data_preview,omitempty"`
	AnswerText  string           `json:"answer_text,omitempty"`
	Error       *ErrorInfo       `json:"error,omitempty"`
	Debug       DebugTrail       `json:"debug"`
}
