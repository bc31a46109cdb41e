package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// Logger sends gorm output to the zerolog logger in the query's context,
// so SQL lines carry the request id of the HTTP call that issued them.
type Logger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewLogger builds a gorm logger. Queries slower than slow are logged as
// warnings.
func NewLogger(level string, slow time.Duration) *Logger {
	return &Logger{level: parseLogLevel(level), slowThreshold: slow}
}

func parseLogLevel(s string) gormlogger.LogLevel {
	switch s {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		zl := pkglog.Ctx(ctx)
		zl.Info().Str("source", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		zl := pkglog.Ctx(ctx)
		zl.Warn().Str("source", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		zl := pkglog.Ctx(ctx)
		zl.Error().Str("source", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed and slow statements, and every statement at info.
// Record-not-found is an expected outcome and never logged as an error.
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	zl := pkglog.Ctx(ctx)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		zl.Error().Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		zl.Warn().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		zl.Debug().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
