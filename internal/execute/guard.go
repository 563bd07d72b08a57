package execute

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

// forbiddenStatementPattern catches any write or DDL keyword appearing as a
// word anywhere in the statement. The compiler can only emit SELECT, but
// nothing reaches a database without passing this check again.
var forbiddenStatementPattern = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|replace|merge|call|exec|set|use|into)\b`)

// Guard is the last gate before a database: single read-only SELECT only,
// bounded rows, bounded time.
type Guard struct {
	executor Executor
	timeout  time.Duration
	rowCap   int
}

func NewGuard(cfg *config.Config, executor Executor) *Guard {
	return &Guard{
		executor: executor,
		timeout:  cfg.Executor.QueryTimeout,
		rowCap:   cfg.Executor.RowCap,
	}
}

// Execute runs one compiled statement. Errors are pipeline errors carrying
// UNSAFE_STATEMENT, EXECUTION_TIMEOUT or EXECUTION_FAILED.
func (g *Guard) Execute(ctx context.Context, compiled model.CompiledSQL) (model.ExecutionResult, error) {
	if err := checkReadOnly(compiled.Text); err != nil {
		log.Error().Err(err).Str("sql", compiled.Text).Msg("Statement rejected by execution guard")
		return model.ExecutionResult{}, model.NewPipelineError("execute", model.CodeUnsafeStatement, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	columns, rows, err := g.executor.Run(runCtx, compiled.Text, compiled.Parameters, g.rowCap)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
			log.Warn().Dur("timeout", g.timeout).Msg("Query exceeded execution timeout")
			return model.ExecutionResult{}, model.NewPipelineError("execute", model.CodeExecutionTimeout, err)
		}
		log.Error().Err(err).Msg("Query execution failed")
		return model.ExecutionResult{}, model.NewPipelineError("execute", model.CodeExecutionFailed, err)
	}

	truncated := false
	if len(rows) > g.rowCap {
		rows = rows[:g.rowCap]
		truncated = true
	}

	log.Info().Int("rows", len(rows)).Bool("truncated", truncated).Dur("elapsed", elapsed).Msg("Query executed")
	return model.ExecutionResult{
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
		Elapsed:   elapsed,
	}, nil
}

// checkReadOnly enforces the statement shape: exactly one statement, it is a
// SELECT, and no write or DDL keyword appears anywhere in it.
func checkReadOnly(sqlText string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";"))
	if trimmed == "" {
		return errors.New("empty statement")
	}
	if strings.Contains(trimmed, ";") {
		return errors.New("multiple statements are not allowed")
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return errors.New("only SELECT statements are allowed")
	}
	if m := forbiddenStatementPattern.FindString(trimmed); m != "" {
		return fmt.Errorf("forbidden keyword %q in statement", strings.ToUpper(m))
	}
	return nil
}
