package kb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
)

func testFacts() []model.SchemaFact {
	return []model.SchemaFact{
		{Table: "dim_feeder", Column: "feeder_id", Type: "varchar"},
		{Table: "dim_feeder", Column: "feeder_name", Type: "varchar"},
		{Table: "dim_feeder", Column: "region", Type: "varchar"},
		{Table: "fact_power", Column: "feeder_id", Type: "varchar"},
		{Table: "fact_power", Column: "stat_time", Type: "datetime"},
		{Table: "fact_power", Column: "supply_kwh", Type: "decimal"},
		{Table: "fact_power", Column: "sales_kwh", Type: "decimal"},
		{Table: "fact_outage", Column: "outage_id", Type: "varchar"},
		{Table: "fact_outage", Column: "feeder_id", Type: "varchar"},
		{Table: "fact_outage", Column: "outage_start", Type: "datetime"},
	}
}

func testJoins() []model.JoinPath {
	return []model.JoinPath{
		{LeftTable: "fact_power", RightTable: "dim_feeder", LeftKey: "feeder_id", RightKey: "feeder_id"},
		{LeftTable: "fact_outage", RightTable: "dim_feeder", LeftKey: "feeder_id", RightKey: "feeder_id"},
	}
}

func testMetrics() []model.MetricDef {
	return []model.MetricDef{
		{
			Name:           "line_loss_rate",
			Formula:        "(SUM({fact_power.supply_kwh}) - SUM({fact_power.sales_kwh})) / NULLIF(SUM({fact_power.supply_kwh}), 0)",
			Unit:           "ratio",
			RequiredFields: []string{"fact_power.supply_kwh", "fact_power.sales_kwh", "fact_power.stat_time"},
		},
		{
			Name:           "outage_count",
			Formula:        "COUNT({fact_outage.outage_id})",
			Unit:           "count",
			RequiredFields: []string{"fact_outage.outage_id", "fact_outage.outage_start"},
		},
	}
}

func testTemplates() []model.TemplateRule {
	return []model.TemplateRule{
		{
			Intent:               "trend",
			AllowedDimensions:    []string{"dim_feeder.feeder_name", "dim_feeder.region"},
			AllowedFilters:       []string{"dim_feeder.region"},
			AllowedGranularities: []string{"day", "month"},
			RequiredClauses:      []string{"time_range"},
		},
		{
			Intent:            "aggregate",
			AllowedDimensions: []string{"dim_feeder.feeder_name", "dim_feeder.region"},
			AllowedFilters:    []string{"dim_feeder.region", "dim_feeder.feeder_name"},
		},
	}
}

func newTestIndex(t *testing.T) *kb.Index {
	t.Helper()
	idx, err := kb.NewIndex(testFacts(), testJoins(), testMetrics(), testTemplates())
	require.NoError(t, err)
	return idx
}

func TestNewIndex_RejectsDuplicates(t *testing.T) {
	facts := append(testFacts(), model.SchemaFact{Table: "dim_feeder", Column: "feeder_id", Type: "varchar"})
	_, err := kb.NewIndex(facts, testJoins(), testMetrics(), testTemplates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate fact")
}

func TestNewIndex_RejectsInconsistentCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule)
		wantMsg string
	}{
		{
			name: "join references unknown table",
			mutate: func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule) {
				return append(j, model.JoinPath{LeftTable: "fact_power", RightTable: "dim_substation", LeftKey: "feeder_id", RightKey: "feeder_id"}), m, r
			},
			wantMsg: "unknown table",
		},
		{
			name: "metric requires unknown field",
			mutate: func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule) {
				m[0].RequiredFields = append(m[0].RequiredFields, "fact_power.mw_total")
				return j, m, r
			},
			wantMsg: "unknown field",
		},
		{
			name: "formula uses disallowed token",
			mutate: func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule) {
				m[0].Formula = "SLEEP(10)"
				return j, m, r
			},
			wantMsg: "disallowed token",
		},
		{
			name: "formula with free-form SQL",
			mutate: func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule) {
				m[0].Formula = "SUM({fact_power.supply_kwh}); DROP TABLE users"
				return j, m, r
			},
			wantMsg: "disallowed",
		},
		{
			name: "template allows unknown dimension",
			mutate: func(j []model.JoinPath, m []model.MetricDef, r []model.TemplateRule) ([]model.JoinPath, []model.MetricDef, []model.TemplateRule) {
				r[0].AllowedDimensions = append(r[0].AllowedDimensions, "dim_feeder.owner")
				return j, m, r
			},
			wantMsg: "unknown dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joins, metrics, templates := tt.mutate(testJoins(), testMetrics(), testTemplates())
			_, err := kb.NewIndex(testFacts(), joins, metrics, templates)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestJoinPathBetween(t *testing.T) {
	idx := newTestIndex(t)

	t.Run("same table is an empty path", func(t *testing.T) {
		path := idx.JoinPathBetween("fact_power", "fact_power")
		require.NotNil(t, path)
		assert.Empty(t, path)
	})

	t.Run("direct edge", func(t *testing.T) {
		path := idx.JoinPathBetween("fact_power", "dim_feeder")
		require.Len(t, path, 1)
		assert.Equal(t, "fact_power", path[0].LeftTable)
	})

	t.Run("two hops through the dimension", func(t *testing.T) {
		path := idx.JoinPathBetween("fact_power", "fact_outage")
		require.Len(t, path, 2)
	})

	t.Run("unreachable table is nil", func(t *testing.T) {
		facts := append(testFacts(), model.SchemaFact{Table: "island", Column: "id", Type: "varchar"})
		idx, err := kb.NewIndex(facts, testJoins(), testMetrics(), testTemplates())
		require.NoError(t, err)
		assert.Nil(t, idx.JoinPathBetween("fact_power", "island"))
	})
}

func TestIndexLookupsAreDeterministic(t *testing.T) {
	idx := newTestIndex(t)

	assert.Equal(t, []string{"dim_feeder", "fact_outage", "fact_power"}, idx.Tables())
	assert.Equal(t, []string{"line_loss_rate", "outage_count"}, idx.Metrics())
	assert.Equal(t,
		[]string{"dim_feeder.feeder_id", "dim_feeder.feeder_name", "dim_feeder.region"},
		idx.ColumnsOf("dim_feeder"))
}

func TestSplitQualified(t *testing.T) {
	table, column, ok := kb.SplitQualified("fact_power.stat_time")
	require.True(t, ok)
	assert.Equal(t, "fact_power", table)
	assert.Equal(t, "stat_time", column)

	_, _, ok = kb.SplitQualified("stat_time")
	assert.False(t, ok)
	_, _, ok = kb.SplitQualified(".stat_time")
	assert.False(t, ok)
}
