package planner

import (
	"context"
	"fmt"
	"strings"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
)

// mockGenerator produces plans from keyword rules over the knowledge base.
// It stands in for the real model in local runs and tests: deterministic,
// and on repair attempts it applies the validator's suggestions.
type mockGenerator struct{}

func NewMockGenerator() PlanGenerator { return mockGenerator{} }

func (mockGenerator) Generate(_ context.Context, pc PromptContext) (model.QueryPlan, error) {
	if pc.PriorPlan != nil {
		return repairPlan(*pc.PriorPlan, pc.PriorErrors), nil
	}
	return draftPlan(pc.Question, pc.Index), nil
}

func draftPlan(question string, idx *kb.Index) model.QueryPlan {
	intent := pickIntent(question)
	plan := model.QueryPlan{
		Metric: pickMetric(question, idx),
		Intent: intent,
		TimeRange: &model.TimeRange{
			Start:       "2024-01-01",
			End:         "2024-01-31",
			Granularity: "day",
		},
	}

	if intent == "trend" || intent == "rank" {
		if dim := pickDimension(idx); dim != "" {
			plan.Dimensions = []string{dim}
		}
	}
	switch intent {
	case "rank":
		plan.Sort = &model.SortSpec{By: "metric", Order: "desc"}
		limit := 10
		plan.Limit = &limit
	case "trend":
		plan.Sort = &model.SortSpec{By: "time_bucket", Order: "asc"}
	}
	return plan
}

func pickMetric(question string, idx *kb.Index) string {
	metrics := idx.Metrics()
	if len(metrics) == 0 {
		return "UNKNOWN"
	}
	q := strings.ToLower(question)
	for keyword, fragment := range map[string]string{
		"loss":   "loss",
		"load":   "load",
		"outage": "outage",
		"trip":   "trip",
		"power":  "power",
	} {
		if !strings.Contains(q, keyword) {
			continue
		}
		for _, m := range metrics {
			if strings.Contains(m, fragment) {
				return m
			}
		}
	}
	return metrics[0]
}

func pickIntent(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "top") || strings.Contains(q, "rank"):
		return "rank"
	case strings.Contains(q, "compare") || strings.Contains(q, "versus"):
		return "compare"
	case strings.Contains(q, "detail") || strings.Contains(q, "list"):
		return "detail"
	case strings.Contains(q, "trend") || strings.Contains(q, "over time"):
		return "trend"
	}
	return "aggregate"
}

func pickDimension(idx *kb.Index) string {
	columns := idx.QualifiedColumns()
	for _, col := range columns {
		if strings.HasSuffix(col, "_name") {
			return col
		}
	}
	if len(columns) > 0 {
		return columns[0]
	}
	return ""
}

// repairPlan applies validator suggestions mechanically: replace unknown
// references with the first suggestion, supply missing clauses, drop what
// cannot be fixed.
func repairPlan(prior model.QueryPlan, errs []model.ValidationError) model.QueryPlan {
	plan := prior.Clone()
	for _, verr := range errs {
		if verr.Severity != model.SeverityFatal {
			continue
		}
		switch {
		case verr.FieldPath == "metric" && len(verr.Suggestions) > 0:
			plan.Metric = verr.Suggestions[0]
		case verr.FieldPath == "time_range" && plan.TimeRange == nil:
			plan.TimeRange = &model.TimeRange{Start: "2024-01-01", End: "2024-01-31", Granularity: "day"}
		case strings.HasPrefix(verr.FieldPath, "dimensions["):
			i := indexOf(verr.FieldPath, "dimensions")
			if i >= 0 && i < len(plan.Dimensions) {
				if len(verr.Suggestions) > 0 {
					plan.Dimensions[i] = verr.Suggestions[0]
				} else {
					plan.Dimensions = append(plan.Dimensions[:i], plan.Dimensions[i+1:]...)
				}
			}
		case strings.HasPrefix(verr.FieldPath, "filters["):
			i := indexOf(verr.FieldPath, "filters")
			if i >= 0 && i < len(plan.Filters) {
				if strings.HasSuffix(verr.FieldPath, ".field") && len(verr.Suggestions) > 0 {
					plan.Filters[i].Field = verr.Suggestions[0]
				} else {
					plan.Filters = append(plan.Filters[:i], plan.Filters[i+1:]...)
				}
			}
		case strings.HasPrefix(verr.FieldPath, "tables_hint["):
			plan.TablesHint = nil
		case verr.FieldPath == "sort":
			plan.Sort = &model.SortSpec{By: "metric", Order: "desc"}
		case verr.FieldPath == "limit":
			limit := 10
			plan.Limit = &limit
		}
	}
	return plan
}

func indexOf(path, prefix string) int {
	var i int
	if _, err := fmt.Sscanf(path, prefix+"[%d]", &i); err != nil {
		return -1
	}
	return i
}
