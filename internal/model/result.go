package model

import "time"

// CompiledSQL is the guarded translation of a validated plan. Text contains
// placeholder markers for every literal value; Parameters holds the typed
// values in positional correspondence.
type CompiledSQL struct {
	Text           string        `json:"text"`
	Parameters     []interface{} `json:"parameters"`
	ResolvedTables []string      `json:"resolved_tables"`
	ResolvedJoins  []JoinPath    `json:"resolved_joins"`
}

// ExecutionResult is the bounded outcome of running a compiled statement.
type ExecutionResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
	Elapsed   time.Duration   `json:"elapsed"`
}

type QualityFinding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QualityReport carries advisory post-execution findings. It never changes
// the execution outcome.
type QualityReport struct {
	Findings []QualityFinding `json:"findings"`
}

func (r QualityReport) Messages() []string {
	msgs := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		msgs = append(msgs, f.Message)
	}
	return msgs
}
