package infra

import (
	"context"
	"errors"
	"time"

	"retailcore/internal/tenant"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger routes gorm's statement log into zerolog. Slow statements are
// warnings, not failures; statement errors are logged at debug because the
// Executor decides which of them are worth reporting.
type gormLogger struct {
	slow  time.Duration
	level logger.LogLevel
}

func NewGormLogger(slow time.Duration) logger.Interface {
	return &gormLogger{slow: slow, level: logger.Warn}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		log.Info().Msgf(msg, data...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		log.Warn().Msgf(msg, data...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		log.Error().Msgf(msg, data...)
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, _ := fc()
		log.Debug().
			Err(err).
			Str("sql", truncateSQL(sql)).
			Dur("elapsed", elapsed).
			Msg("statement failed")
	case g.slow > 0 && elapsed > g.slow && g.level >= logger.Warn:
		sql, rows := fc()
		log.Warn().
			Str("sql", truncateSQL(sql)).
			Int64("rows", rows).
			Dur("elapsed", elapsed).
			Str("tenant_id", tenant.ID(ctx)).
			Msg("slow query")
	}
}
