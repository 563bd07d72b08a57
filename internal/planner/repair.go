package planner

import (
	"context"

	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/validate"
)

// Resolver drives the generate-validate-repair loop. The attempt budget is
// fixed up front; a generator failure aborts immediately instead of burning
// the remaining budget on a dead model.
type Resolver struct {
	generator   PlanGenerator
	maxAttempts int
}

func NewResolver(cfg *config.Config, generator PlanGenerator) *Resolver {
	maxAttempts := cfg.Repair.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Resolver{generator: generator, maxAttempts: maxAttempts}
}

// Resolve returns the first plan that passes validation with no fatal
// errors, together with its advisory findings and the full attempt trail.
// When the budget is exhausted it returns the last rejected plan and its
// errors with err == nil; the caller decides how to surface that. A non-nil
// err is always a GENERATION_FAILED pipeline error.
func (r *Resolver) Resolve(ctx context.Context, question string, idx *kb.Index) (model.QueryPlan, []model.ValidationError, []model.PlanAttempt, error) {
	var (
		attempts  []model.PlanAttempt
		lastPlan  model.QueryPlan
		lastErrs  []model.ValidationError
		priorPlan *model.QueryPlan
	)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		pc := PromptContext{Question: question, Index: idx}
		if priorPlan != nil {
			pc.PriorPlan = priorPlan
			pc.PriorErrors = fatalOnly(lastErrs)
		}

		plan, err := r.generator.Generate(ctx, pc)
		if err != nil {
			log.Error().Err(err).Int("attempt", attempt).Msg("Plan generation failed")
			return model.QueryPlan{}, nil, attempts, model.NewPipelineError("planner", model.CodeGenerationFailed, err)
		}

		errs := validate.Plan(plan, idx)
		// Record a deep copy so a later repair can never rewrite history
		// through a shared backing array.
		attempts = append(attempts, model.PlanAttempt{Plan: plan.Clone(), Errors: errs})
		lastPlan, lastErrs = plan, errs

		if !model.HasFatal(errs) {
			log.Info().Int("attempt", attempt).Str("metric", plan.Metric).Msg("Plan accepted")
			return plan, errs, attempts, nil
		}

		log.Warn().Int("attempt", attempt).Int("fatal_errors", len(fatalOnly(errs))).Msg("Plan rejected, scheduling repair")
		priorPlan = &plan
	}

	log.Warn().Int("max_attempts", r.maxAttempts).Msg("Repair budget exhausted")
	return lastPlan, lastErrs, attempts, nil
}

func fatalOnly(errs []model.ValidationError) []model.ValidationError {
	var fatal []model.ValidationError
	for _, e := range errs {
		if e.Severity == model.SeverityFatal {
			fatal = append(fatal, e)
		}
	}
	return fatal
}
