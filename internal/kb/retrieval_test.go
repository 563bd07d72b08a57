package kb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
)

func retrievalIndex(t *testing.T) *kb.Index {
	t.Helper()
	facts := []model.SchemaFact{
		{Table: "dim_feeder", Column: "feeder_id", Type: "varchar"},
		{Table: "dim_feeder", Column: "feeder_name", Type: "varchar"},
		{Table: "dim_feeder", Column: "region", Type: "varchar"},
		{Table: "fact_power", Column: "feeder_id", Type: "varchar"},
		{Table: "fact_power", Column: "stat_time", Type: "datetime"},
		{Table: "fact_power", Column: "supply_kwh", Type: "decimal", Unit: "kWh"},
		{Table: "fact_outage", Column: "outage_id", Type: "varchar"},
		{Table: "fact_outage", Column: "duration_min", Type: "int", Unit: "min"},
	}
	joins := []model.JoinPath{
		{LeftTable: "fact_power", RightTable: "dim_feeder", LeftKey: "feeder_id", RightKey: "feeder_id"},
	}
	metrics := []model.MetricDef{
		{
			Name:           "line_loss_rate",
			Formula:        "SUM({fact_power.supply_kwh})",
			Unit:           "ratio",
			RequiredFields: []string{"fact_power.supply_kwh", "fact_power.stat_time"},
		},
		{
			Name:           "outage_count",
			Formula:        "COUNT({fact_outage.outage_id})",
			Unit:           "count",
			RequiredFields: []string{"fact_outage.outage_id"},
		},
	}
	idx, err := kb.NewIndex(facts, joins, metrics, nil)
	require.NoError(t, err)
	return idx
}

func TestRetrieveEvidence_RanksQuestionTermsFirst(t *testing.T) {
	idx := retrievalIndex(t)

	evidence := idx.RetrieveEvidence("total outage count by region", 3)
	require.NotEmpty(t, evidence.Metrics)
	assert.Equal(t, "outage_count", evidence.Metrics[0])
	require.NotEmpty(t, evidence.Columns)
	assert.Equal(t, "dim_feeder.region", evidence.Columns[0])
}

func TestRetrieveEvidence_TruncatesToTopK(t *testing.T) {
	idx := retrievalIndex(t)

	evidence := idx.RetrieveEvidence("supply energy trend", 2)
	assert.Len(t, evidence.Columns, 2)
	assert.Len(t, evidence.Metrics, 2)
}

func TestRetrieveEvidence_SmallCatalogShipsWhole(t *testing.T) {
	idx := retrievalIndex(t)

	evidence := idx.RetrieveEvidence("something entirely unrelated", 50)
	assert.ElementsMatch(t, idx.Metrics(), evidence.Metrics)
	assert.ElementsMatch(t, idx.QualifiedColumns(), evidence.Columns)
}

func TestRetrieveEvidence_Deterministic(t *testing.T) {
	idx := retrievalIndex(t)

	first := idx.RetrieveEvidence("feeder outage duration", 4)
	second := idx.RetrieveEvidence("feeder outage duration", 4)
	assert.Equal(t, first, second)
}
