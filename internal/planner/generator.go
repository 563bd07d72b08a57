package planner

import (
	"context"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
)

// PromptContext is everything a generator may see for one attempt. For
// repair attempts the prior plan and its fatal errors are attached.
type PromptContext struct {
	Question    string
	Index       *kb.Index
	PriorPlan   *model.QueryPlan
	PriorErrors []model.ValidationError
}

// PlanGenerator is the single capability the pipeline consumes from the
// language model: prompt context in, candidate plan out. Implementations
// must honor ctx cancellation; a failure aborts the repair loop.
type PlanGenerator interface {
	Generate(ctx context.Context, pc PromptContext) (model.QueryPlan, error)
}

// NewPlanGenerator selects the generator implementation by configuration.
func NewPlanGenerator(cfg *config.Config) PlanGenerator {
	if cfg.LLM.Mode == "http" {
		return NewHTTPGenerator(cfg.LLM)
	}
	return NewMockGenerator()
}
