package execute

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"power-text2sql-backend/config"
)

// Executor runs one already-compiled statement against a concrete backend.
// Implementations fetch at most maxRows+1 rows so the guard can detect
// truncation without draining the cursor.
type Executor interface {
	Run(ctx context.Context, sqlText string, params []interface{}, maxRows int) (columns []string, rows [][]interface{}, err error)
}

// NewExecutor selects the backend by configuration and hooks connection
// teardown into the application lifecycle.
func NewExecutor(lc fx.Lifecycle, cfg *config.Config) (Executor, error) {
	switch cfg.Executor.Mode {
	case "mock":
		return NewMockExecutor(), nil
	case "mysql":
		return NewMySQLExecutor(lc, cfg)
	case "timescale":
		return NewTimescaleExecutor(lc, cfg)
	}
	return nil, fmt.Errorf("unknown executor mode %q", cfg.Executor.Mode)
}
