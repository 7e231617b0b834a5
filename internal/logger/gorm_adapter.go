package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes GORM output for the sqlite key/value store into a
// module logger. Statements carry bound values such as access and device
// tokens, so they pass through RedactSensitiveData and are logged at TRACE.
type GormLoggerAdapter struct {
	logger        Logger
	slowThreshold time.Duration
}

// NewGormLoggerAdapter returns an adapter that warns about statements slower
// than slowThreshold. Zero disables slow statement warnings.
func NewGormLoggerAdapter(log Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelError, nil)
	}
	return &GormLoggerAdapter{
		logger:        log,
		slowThreshold: slowThreshold,
	}
}

// LogMode is a no-op; verbosity follows the storage module level
func (a *GormLoggerAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface {
	return a
}

// Info maps GORM's chatty info output to DEBUG
func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(RedactSensitiveData(fmt.Sprintf(msg, data...)))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(RedactSensitiveData(fmt.Sprintf(msg, data...)))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(RedactSensitiveData(fmt.Sprintf(msg, data...)))
}

// Trace logs each kv statement. Failed and slow statements go to WARN;
// a missing key (ErrRecordNotFound) is a normal lookup miss.
func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []Field{
		String("sql", RedactSensitiveData(sql)),
		Int64("rows_affected", rows),
		Int64("duration_ms", elapsed.Milliseconds()),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		a.logger.Warn("kv statement failed", append(fields, Error(err))...)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.logger.Warn("slow kv statement", append(fields, Duration("threshold", a.slowThreshold))...)
	default:
		a.logger.Trace("kv statement", fields...)
	}
}
