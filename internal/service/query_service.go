package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"power-text2sql-backend/internal/audit"
	"power-text2sql-backend/internal/compile"
	"power-text2sql-backend/internal/dto"
	"power-text2sql-backend/internal/execute"
	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/planner"
	"power-text2sql-backend/internal/quality"
)

// QueryService runs the whole question-to-answer pipeline and records every
// outcome in the audit trail.
type QueryService interface {
	ProcessQuestion(ctx context.Context, req dto.QueryRequest) (*dto.QueryResponse, error)
	AuditRecord(ctx context.Context, requestID string) (*model.AuditRecord, error)
}

type queryService struct {
	provider *kb.Provider
	resolver *planner.Resolver
	compiler *compile.Compiler
	guard    *execute.Guard
	auditor  *audit.Logger
}

func NewQueryService(
	provider *kb.Provider,
	resolver *planner.Resolver,
	compiler *compile.Compiler,
	guard *execute.Guard,
	auditor *audit.Logger,
) QueryService {
	return &queryService{
		provider: provider,
		resolver: resolver,
		compiler: compiler,
		guard:    guard,
		auditor:  auditor,
	}
}

// ProcessQuestion never returns an error for pipeline failures: those come
// back as Success=false with a structured code and the full debug trail.
// The returned error is reserved for malformed service state.
func (s *queryService) ProcessQuestion(ctx context.Context, req dto.QueryRequest) (*dto.QueryResponse, error) {
	requestID := uuid.NewString()
	started := time.Now()
	idx := s.provider.Current()

	log.Info().Str("request_id", requestID).Str("question", req.Question).Msg("Processing question")

	record := model.AuditRecord{
		RequestID: requestID,
		Question:  req.Question,
		CreatedAt: started.UTC(),
	}
	finish := func(resp *dto.QueryResponse) *dto.QueryResponse {
		record.ElapsedMS = time.Since(started).Milliseconds()
		s.auditor.Record(ctx, record)
		return resp
	}
	fail := func(code model.ErrorCode, message string, debug dto.DebugTrail) *dto.QueryResponse {
		record.Error = fmt.Sprintf("%s: %s", code, message)
		return finish(&dto.QueryResponse{
			RequestID: requestID,
			Success:   false,
			Error:     &dto.ErrorInfo{Code: code, Message: message},
			Debug:     debug,
		})
	}

	plan, verrs, attempts, err := s.resolver.Resolve(ctx, req.Question, idx)
	record.PlanAttempts = attempts
	debug := dto.DebugTrail{Attempts: attempts}
	if err != nil {
		return fail(pipelineCode(err, model.CodeGenerationFailed), err.Error(), debug), nil
	}
	debug.ValidationErrors = verrs
	if model.HasFatal(verrs) {
		return fail(firstFatalCode(verrs),
			fmt.Sprintf("plan still invalid after %d attempts", len(attempts)), debug), nil
	}
	record.FinalPlan = &plan

	compiled, err := s.compiler.Compile(plan, idx)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Compilation rejected the plan")
		return fail(pipelineCode(err, model.CodeCompileGuardViolation), err.Error(), debug), nil
	}
	record.CompiledSQL = compiled.Text

	result, err := s.guard.Execute(ctx, compiled)
	if err != nil {
		code := pipelineCode(err, model.CodeExecutionFailed)
		record.ExecutionSummary = &model.ExecutionSummary{Error: err.Error()}
		resp := fail(code, err.Error(), debug)
		resp.PlanDSL = &plan
		resp.SQL = compiled.Text
		return resp, nil
	}
	record.ExecutionSummary = &model.ExecutionSummary{
		RowCount:  len(result.Rows),
		Truncated: result.Truncated,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}

	metricDef, _ := idx.MetricDefinition(plan.Metric)
	report := quality.Check(plan, metricDef, result)
	debug.QualityFindings = report.Findings

	preview := dto.DataPreview{
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
	}

	return finish(&dto.QueryResponse{
		RequestID:   requestID,
		Success:     true,
		PlanDSL:     &plan,
		SQL:         compiled.Text,
		DataPreview: &preview,
		AnswerText:  buildAnswer(plan, metricDef, preview, report.Findings),
		Debug:       debug,
	}), nil
}

func (s *queryService) AuditRecord(ctx context.Context, requestID string) (*model.AuditRecord, error) {
	return s.auditor.Find(ctx, requestID)
}

func pipelineCode(err error, fallback model.ErrorCode) model.ErrorCode {
	var perr *model.PipelineError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return fallback
}

func firstFatalCode(errs []model.ValidationError) model.ErrorCode {
	for _, e := range errs {
		if e.Severity == model.SeverityFatal {
			return e.Code
		}
	}
	return model.CodeSchemaInvalid
}
