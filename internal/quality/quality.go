// Package quality runs advisory sanity checks over executed results. A
// finding never fails the request; it rides along in the response and the
// audit trail.
package quality

import (
	"fmt"

	"power-text2sql-backend/internal/model"
)

const (
	CodeEmptyResult     = "EMPTY_RESULT"
	CodeValueOutOfBand  = "VALUE_OUT_OF_BAND"
	CodeNegativeCount   = "NEGATIVE_COUNT"
	CodeMixedUnits      = "MIXED_UNITS"
	CodeHighCardinality = "HIGH_CARDINALITY"
)

// Check inspects the result against the plan's shape and the metric's
// declared unit.
func Check(plan model.QueryPlan, metricDef model.MetricDef, result model.ExecutionResult) model.QualityReport {
	var report model.QualityReport

	if len(result.Rows) == 0 {
		report.Findings = append(report.Findings, model.QualityFinding{
			Code:    CodeEmptyResult,
			Message: "result is empty; the time range or filters may be too narrow, or the data may be missing",
		})
		return report
	}

	if len(plan.Dimensions) > 0 && result.Truncated {
		report.Findings = append(report.Findings, model.QualityFinding{
			Code:    CodeHighCardinality,
			Message: "grouping produced more rows than the preview cap; consider a coarser dimension or an explicit limit",
		})
	}

	values := metricValues(metricDef.Name, result)
	if len(values) > 0 {
		minVal, maxVal := values[0], values[0]
		for _, v := range values[1:] {
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
		switch metricDef.Unit {
		case "%", "ratio":
			if minVal < 0 || maxVal > 1.5 {
				report.Findings = append(report.Findings, model.QualityFinding{
					Code:    CodeValueOutOfBand,
					Message: fmt.Sprintf("metric %q values fall outside the usual ratio range [0, 1.5]", metricDef.Name),
				})
			}
		case "count", "min":
			if minVal < 0 {
				report.Findings = append(report.Findings, model.QualityFinding{
					Code:    CodeNegativeCount,
					Message: fmt.Sprintf("metric %q has negative values", metricDef.Name),
				})
			}
		}
	}

	if idx := columnIndex(result.Columns, "unit"); idx >= 0 {
		units := make(map[string]bool)
		for _, row := range result.Rows {
			if idx < len(row) && row[idx] != nil {
				units[fmt.Sprint(row[idx])] = true
			}
		}
		if len(units) > 1 {
			report.Findings = append(report.Findings, model.QualityFinding{
				Code:    CodeMixedUnits,
				Message: "result mixes more than one unit; verify the measure dimension",
			})
		}
	}

	return report
}

func metricValues(metricColumn string, result model.ExecutionResult) []float64 {
	idx := columnIndex(result.Columns, metricColumn)
	if idx < 0 {
		return nil
	}
	var values []float64
	for _, row := range result.Rows {
		if idx >= len(row) {
			continue
		}
		switch v := row[idx].(type) {
		case float64:
			values = append(values, v)
		case float32:
			values = append(values, float64(v))
		case int:
			values = append(values, float64(v))
		case int64:
			values = append(values, float64(v))
		}
	}
	return values
}

func columnIndex(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
