package execute

import (
	"context"
	"fmt"
	"time"
)

// MockExecutor serves canned rows for local runs and tests. Columns and Rows
// may be replaced to shape a scenario; Run still honors the row budget.
type MockExecutor struct {
	Columns []string
	Rows    [][]interface{}
	RunErr  error
	Delay   time.Duration
}

func NewMockExecutor() *MockExecutor {
	rows := make([][]interface{}, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, []interface{}{
			fmt.Sprintf("2024-01-%02d", i+1),
			float64(100 + i*7),
		})
	}
	return &MockExecutor{
		Columns: []string{"time_bucket", "value"},
		Rows:    rows,
	}
}

func (m *MockExecutor) Run(ctx context.Context, _ string, _ []interface{}, maxRows int) ([]string, [][]interface{}, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if m.RunErr != nil {
		return nil, nil, m.RunErr
	}
	rows := m.Rows
	if len(rows) > maxRows+1 {
		rows = rows[:maxRows+1]
	}
	return m.Columns, rows, nil
}
