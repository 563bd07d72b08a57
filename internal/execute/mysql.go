package execute

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"power-text2sql-backend/config"
)

type mysqlExecutor struct {
	db *gorm.DB
}

// NewMySQLExecutor opens a GORM connection to the MySQL warehouse and closes
// it on shutdown.
func NewMySQLExecutor(lc fx.Lifecycle, cfg *config.Config) (Executor, error) {
	db, err := gorm.Open(mysql.Open(cfg.Executor.MySQLDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MySQL")
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying MySQL connection: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to ping MySQL: %w", err)
			}
			log.Info().Msg("MySQL connection verified")
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info().Msg("Closing MySQL connection")
			return sqlDB.Close()
		},
	})

	return &mysqlExecutor{db: db}, nil
}

func (e *mysqlExecutor) Run(ctx context.Context, sqlText string, params []interface{}, maxRows int) ([]string, [][]interface{}, error) {
	rows, err := e.db.WithContext(ctx).Raw(sqlText, params...).Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("mysql query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var result [][]interface{}
	for rows.Next() {
		if len(result) > maxRows {
			break
		}
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("mysql result iteration failed: %w", err)
	}
	return columns, result, nil
}
