package service

import (
	"fmt"
	"strings"

	"power-text2sql-backend/internal/dto"
	"power-text2sql-backend/internal/model"
)

// buildAnswer summarizes a result in plain language using fixed rules. No
// model call happens here, so the text is deterministic and always states
// the metric definition the numbers were computed under.
func buildAnswer(plan model.QueryPlan, metricDef model.MetricDef, preview dto.DataPreview, findings []model.QualityFinding) string {
	if len(preview.Rows) == 0 {
		if plan.TimeRange != nil {
			return fmt.Sprintf(
				"No data found between %s and %s. The time range may contain no records, or the filters may be too narrow. Try widening the range or removing filters.",
				plan.TimeRange.Start, plan.TimeRange.End)
		}
		return "No data found. The filters may be too narrow; try removing some and retrying."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Metric %s", metricDef.Name)
	if metricDef.Unit != "" {
		fmt.Fprintf(&sb, " (unit: %s)", metricDef.Unit)
	}
	sb.WriteString(".")

	if plan.TimeRange != nil {
		fmt.Fprintf(&sb, " Time range: %s to %s.", plan.TimeRange.Start, plan.TimeRange.End)
	}

	if avg, ok := averageMetricValue(metricDef.Name, preview); ok {
		fmt.Fprintf(&sb, " Average value over %d rows: %.4f.", len(preview.Rows), avg)
	} else {
		fmt.Fprintf(&sb, " Returned %d rows.", len(preview.Rows))
	}
	if preview.Truncated {
		sb.WriteString(" The preview is truncated; narrow the query for the full picture.")
	}

	if len(findings) > 0 {
		msgs := make([]string, len(findings))
		for i, f := range findings {
			msgs[i] = f.Message
		}
		fmt.Fprintf(&sb, " Note: %s", strings.Join(msgs, "; "))
	}
	return sb.String()
}

func averageMetricValue(metricColumn string, preview dto.DataPreview) (float64, bool) {
	idx := -1
	for i, c := range preview.Columns {
		if c == metricColumn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}

	var sum float64
	var n int
	for _, row := range preview.Rows {
		if idx >= len(row) {
			continue
		}
		switch v := row[idx].(type) {
		case float64:
			sum += v
			n++
		case float32:
			sum += float64(v)
			n++
		case int:
			sum += float64(v)
			n++
		case int64:
			sum += float64(v)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
