package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"power-text2sql-backend/config"
)

type timescaleExecutor struct {
	pool *pgxpool.Pool
}

// NewTimescaleExecutor creates a pgx connection pool against the TimescaleDB
// warehouse and verifies it before the server accepts traffic.
func NewTimescaleExecutor(lc fx.Lifecycle, cfg *config.Config) (Executor, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Executor.TimescaleDSN)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse TimescaleDB DSN")
		return nil, fmt.Errorf("invalid TimescaleDB DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Error().Err(err).Msg("Unable to create connection pool to TimescaleDB")
		return nil, fmt.Errorf("failed to connect to TimescaleDB: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := pool.Ping(pingCtx); err != nil {
				return fmt.Errorf("failed to ping TimescaleDB: %w", err)
			}
			log.Info().Msg("TimescaleDB connection pool created and verified")
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info().Msg("Closing TimescaleDB connection pool")
			pool.Close()
			return nil
		},
	})

	return &timescaleExecutor{pool: pool}, nil
}

func (e *timescaleExecutor) Run(ctx context.Context, sqlText string, params []interface{}, maxRows int) ([]string, [][]interface{}, error) {
	rows, err := e.pool.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("timescale query failed: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	var result [][]interface{}
	for rows.Next() {
		if len(result) > maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read result row: %w", err)
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("timescale result iteration failed: %w", err)
	}
	return columns, result, nil
}
