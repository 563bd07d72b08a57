package planner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/planner"
)

func newIndex(t *testing.T) *kb.Index {
	t.Helper()
	facts := []model.SchemaFact{
		{Table: "dim_feeder", Column: "feeder_id", Type: "varchar"},
		{Table: "dim_feeder", Column: "feeder_name", Type: "varchar"},
		{Table: "dim_feeder", Column: "region", Type: "varchar"},
		{Table: "fact_power", Column: "feeder_id", Type: "varchar"},
		{Table: "fact_power", Column: "stat_time", Type: "datetime"},
		{Table: "fact_power", Column: "active_power_mw", Type: "decimal"},
	}
	joins := []model.JoinPath{
		{LeftTable: "fact_power", RightTable: "dim_feeder", LeftKey: "feeder_id", RightKey: "feeder_id"},
	}
	metrics := []model.MetricDef{
		{
			Name:           "active_power_mw",
			Formula:        "AVG({fact_power.active_power_mw})",
			Unit:           "MW",
			RequiredFields: []string{"fact_power.active_power_mw", "fact_power.stat_time"},
		},
	}
	idx, err := kb.NewIndex(facts, joins, metrics, nil)
	require.NoError(t, err)
	return idx
}

func validPlan() model.QueryPlan {
	return model.QueryPlan{
		Metric:    "active_power_mw",
		Intent:    "trend",
		TimeRange: &model.TimeRange{Start: "2024-01-01", End: "2024-01-31", Granularity: "day"},
	}
}

// scriptedGenerator returns the queued plans in order and records the prompt
// contexts it was called with.
type scriptedGenerator struct {
	plans []model.QueryPlan
	err   error
	calls []planner.PromptContext
}

func (g *scriptedGenerator) Generate(_ context.Context, pc planner.PromptContext) (model.QueryPlan, error) {
	g.calls = append(g.calls, pc)
	if g.err != nil {
		return model.QueryPlan{}, g.err
	}
	plan := g.plans[0]
	if len(g.plans) > 1 {
		g.plans = g.plans[1:]
	}
	return plan, nil
}

func resolverConfig(maxAttempts int) *config.Config {
	return &config.Config{Repair: config.RepairConfig{MaxAttempts: maxAttempts}}
}

func TestResolve_AcceptsFirstValidPlan(t *testing.T) {
	idx := newIndex(t)
	gen := &scriptedGenerator{plans: []model.QueryPlan{validPlan()}}
	resolver := planner.NewResolver(resolverConfig(3), gen)

	plan, errs, attempts, err := resolver.Resolve(context.Background(), "load trend", idx)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, attempts, 1)
	assert.Equal(t, "active_power_mw", plan.Metric)
	assert.Nil(t, gen.calls[0].PriorPlan)
}

func TestResolve_RepairsWithPriorErrors(t *testing.T) {
	idx := newIndex(t)
	bad := validPlan()
	bad.Metric = "mw_total"
	gen := &scriptedGenerator{plans: []model.QueryPlan{bad, validPlan()}}
	resolver := planner.NewResolver(resolverConfig(3), gen)

	plan, errs, attempts, err := resolver.Resolve(context.Background(), "load trend", idx)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, attempts, 2)
	assert.Equal(t, "mw_total", attempts[0].Plan.Metric)
	assert.True(t, model.HasFatal(attempts[0].Errors))
	assert.Equal(t, "active_power_mw", plan.Metric)

	// The repair attempt sees the rejected plan and only its fatal errors.
	require.Len(t, gen.calls, 2)
	require.NotNil(t, gen.calls[1].PriorPlan)
	assert.Equal(t, "mw_total", gen.calls[1].PriorPlan.Metric)
	for _, e := range gen.calls[1].PriorErrors {
		assert.Equal(t, model.SeverityFatal, e.Severity)
	}
}

func TestResolve_BudgetExhaustion(t *testing.T) {
	idx := newIndex(t)
	bad := validPlan()
	bad.Metric = "mw_total"
	gen := &scriptedGenerator{plans: []model.QueryPlan{bad}}
	resolver := planner.NewResolver(resolverConfig(3), gen)

	plan, errs, attempts, err := resolver.Resolve(context.Background(), "load trend", idx)
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
	assert.Len(t, gen.calls, 3)
	assert.True(t, model.HasFatal(errs))
	assert.Equal(t, "mw_total", plan.Metric)
}

// draftThenMock emits a scripted first draft, then hands repair attempts to
// the real mock generator.
type draftThenMock struct {
	draft model.QueryPlan
	mock  planner.PlanGenerator
}

func (g *draftThenMock) Generate(ctx context.Context, pc planner.PromptContext) (model.QueryPlan, error) {
	if pc.PriorPlan == nil {
		return g.draft, nil
	}
	return g.mock.Generate(ctx, pc)
}

func TestResolve_RepairDoesNotRewriteRecordedAttempts(t *testing.T) {
	idx := newIndex(t)
	bad := validPlan()
	bad.Dimensions = []string{"dim_feeder.regoin"}
	gen := &draftThenMock{draft: bad, mock: planner.NewMockGenerator()}
	resolver := planner.NewResolver(resolverConfig(3), gen)

	plan, _, attempts, err := resolver.Resolve(context.Background(), "load trend by region", idx)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// The first attempt stays exactly as generated even though the repair
	// replaced the misspelled dimension.
	assert.Equal(t, []string{"dim_feeder.regoin"}, attempts[0].Plan.Dimensions)
	assert.True(t, model.HasFatal(attempts[0].Errors))
	assert.NotEqual(t, attempts[0].Plan.Dimensions, plan.Dimensions)
	assert.Equal(t, attempts[1].Plan.Dimensions, plan.Dimensions)
}

func TestResolve_GenerationFailureAbortsImmediately(t *testing.T) {
	idx := newIndex(t)
	gen := &scriptedGenerator{err: errors.New("model unavailable")}
	resolver := planner.NewResolver(resolverConfig(3), gen)

	_, _, attempts, err := resolver.Resolve(context.Background(), "load trend", idx)
	require.Error(t, err)
	assert.Empty(t, attempts)
	assert.Len(t, gen.calls, 1)

	var perr *model.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, model.CodeGenerationFailed, perr.Code)
}

func TestMockGenerator_RepairAppliesSuggestions(t *testing.T) {
	idx := newIndex(t)
	gen := planner.NewMockGenerator()

	prior := validPlan()
	prior.Metric = "mw_total"
	prior.Dimensions = []string{"dim_feeder.regoin"}

	plan, err := gen.Generate(context.Background(), planner.PromptContext{
		Question:  "load trend by region",
		Index:     idx,
		PriorPlan: &prior,
		PriorErrors: []model.ValidationError{
			{Code: model.CodeUnknownReference, FieldPath: "metric", Severity: model.SeverityFatal, Suggestions: []string{"active_power_mw"}},
			{Code: model.CodeUnknownReference, FieldPath: "dimensions[0]", Severity: model.SeverityFatal, Suggestions: []string{"dim_feeder.region"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "active_power_mw", plan.Metric)
	assert.Equal(t, []string{"dim_feeder.region"}, plan.Dimensions)

	// The prior plan is input, not scratch space.
	assert.Equal(t, "mw_total", prior.Metric)
	assert.Equal(t, []string{"dim_feeder.regoin"}, prior.Dimensions)
}

func TestMockGenerator_DraftIsDeterministic(t *testing.T) {
	idx := newIndex(t)
	gen := planner.NewMockGenerator()
	pc := planner.PromptContext{Question: "top 5 feeders by load", Index: idx}

	first, err := gen.Generate(context.Background(), pc)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "rank", first.Intent)
	require.NotNil(t, first.Sort)
	assert.Equal(t, "desc", first.Sort.Order)
	require.NotNil(t, first.Limit)
}

func TestDecodePlanOutput(t *testing.T) {
	t.Run("extracts JSON from fenced output", func(t *testing.T) {
		raw := "Here is the plan:\n```json\n{\"metric\": \"active_power_mw\", \"intent\": \"trend\"}\n```"
		plan, err := planner.DecodePlanOutput(raw)
		require.NoError(t, err)
		assert.Equal(t, "active_power_mw", plan.Metric)
	})

	t.Run("rejects non JSON", func(t *testing.T) {
		_, err := planner.DecodePlanOutput("I cannot answer that")
		require.Error(t, err)
	})

	t.Run("rejects embedded SQL", func(t *testing.T) {
		_, err := planner.DecodePlanOutput(`{"metric": "SELECT * FROM fact_power", "intent": "detail"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SQL")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := planner.DecodePlanOutput(`{"metric": "active_power_mw", "raw_sql": "x"}`)
		require.Error(t, err)
	})
}
