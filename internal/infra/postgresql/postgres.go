package postgresql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	minOpenConns       = 10
	pingTimeout        = 5 * time.Second
	slowQueryThreshold = 200 * time.Millisecond
)

// NewPostgres opens the profiles/notification_logs database. The pool is
// sized so every fan-out worker can hold a connection for its audit insert.
func NewPostgres(dsn string, dispatchConcurrency int, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 newGormLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen, maxIdle := poolSize(dispatchConcurrency)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// poolSize leaves headroom above the fan-out limit for the dedup lookup,
// log listing and readiness probes.
func poolSize(dispatchConcurrency int) (maxOpen int, maxIdle int) {
	maxOpen = max(dispatchConcurrency+5, minOpenConns)
	return maxOpen, max(maxOpen/4, 2)
}

// newGormLogger routes gorm warnings and slow queries through zap.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.WithOptions(zap.AddCallerSkip(3))),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}
