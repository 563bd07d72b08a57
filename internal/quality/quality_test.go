package quality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/quality"
)

func ratioMetric() model.MetricDef {
	return model.MetricDef{Name: "line_loss_rate", Unit: "ratio"}
}

func trendPlan() model.QueryPlan {
	return model.QueryPlan{Metric: "line_loss_rate", Intent: "trend"}
}

func result(columns []string, rows [][]interface{}) model.ExecutionResult {
	return model.ExecutionResult{Columns: columns, Rows: rows}
}

func findingCodes(report model.QualityReport) []string {
	codes := make([]string, len(report.Findings))
	for i, f := range report.Findings {
		codes[i] = f.Code
	}
	return codes
}

func TestCheck_EmptyResult(t *testing.T) {
	report := quality.Check(trendPlan(), ratioMetric(), result([]string{"line_loss_rate"}, nil))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, quality.CodeEmptyResult, report.Findings[0].Code)
}

func TestCheck_RatioOutOfBand(t *testing.T) {
	rows := [][]interface{}{
		{"north", 0.05},
		{"south", 2.4},
	}
	report := quality.Check(trendPlan(), ratioMetric(), result([]string{"region", "line_loss_rate"}, rows))
	assert.Contains(t, findingCodes(report), quality.CodeValueOutOfBand)
}

func TestCheck_RatioWithinBand(t *testing.T) {
	rows := [][]interface{}{
		{"north", 0.05},
		{"south", 0.08},
	}
	report := quality.Check(trendPlan(), ratioMetric(), result([]string{"region", "line_loss_rate"}, rows))
	assert.Empty(t, report.Findings)
}

func TestCheck_NegativeCount(t *testing.T) {
	metric := model.MetricDef{Name: "outage_count", Unit: "count"}
	rows := [][]interface{}{
		{"north", int64(3)},
		{"south", int64(-1)},
	}
	report := quality.Check(trendPlan(), metric, result([]string{"region", "outage_count"}, rows))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, quality.CodeNegativeCount, report.Findings[0].Code)
}

func TestCheck_MixedUnits(t *testing.T) {
	metric := model.MetricDef{Name: "supply_energy", Unit: "kWh"}
	rows := [][]interface{}{
		{100.0, "kWh"},
		{200.0, "MWh"},
	}
	report := quality.Check(trendPlan(), metric, result([]string{"supply_energy", "unit"}, rows))
	assert.Contains(t, findingCodes(report), quality.CodeMixedUnits)
}

func TestCheck_HighCardinalityWhenGroupedAndTruncated(t *testing.T) {
	plan := trendPlan()
	plan.Dimensions = []string{"dim_feeder.feeder_name"}
	res := result([]string{"feeder_name", "line_loss_rate"}, [][]interface{}{{"F001", 0.04}})
	res.Truncated = true

	report := quality.Check(plan, ratioMetric(), res)
	assert.Contains(t, findingCodes(report), quality.CodeHighCardinality)

	res.Truncated = false
	report = quality.Check(plan, ratioMetric(), res)
	assert.NotContains(t, findingCodes(report), quality.CodeHighCardinality)
}

func TestCheck_MetricColumnAbsentIsFine(t *testing.T) {
	report := quality.Check(trendPlan(), ratioMetric(), result([]string{"region"}, [][]interface{}{{"north"}}))
	assert.Empty(t, report.Findings)
}
