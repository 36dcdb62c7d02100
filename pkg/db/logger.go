package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "payouts-controlplane/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// gormLogger writes statements through the trace-aware application logger.
type gormLogger struct {
	level   logger.LogLevel
	slow    time.Duration
	showSQL bool
}

func newGormLogger(level logger.LogLevel, slow time.Duration, showSQL bool) *gormLogger {
	return &gormLogger{level: level, slow: slow, showSQL: showSQL}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) log(ctx context.Context) *zap.Logger {
	return applog.FromContext(ctx, zap.String("component", "gorm"))
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, logger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow
	verbose := l.level >= logger.Info && l.showSQL
	if !failed && !slow && !verbose {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("caller", utils.FileWithLineNum()),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
	}

	switch {
	case failed:
		l.log(ctx).Error("sql failed", append(fields, zap.Error(err))...)
	case slow:
		l.log(ctx).Warn("sql slow", append(fields, zap.Duration("threshold", l.slow))...)
	default:
		l.log(ctx).Debug("sql", fields...)
	}
}
