package db

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowThreshold = 500 * time.Millisecond

// NewLogger bridges gorm's logging into logrus so SQL output follows the
// process-wide log level and format.
func NewLogger(logLevel string) gormlogger.Interface {
	level := gormlogger.Warn
	switch logLevel {
	case "trace", "debug":
		level = gormlogger.Info
	case "error":
		level = gormlogger.Error
	}
	return &dbLogger{level: level}
}

type dbLogger struct {
	level gormlogger.LogLevel
}

func (l *dbLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &dbLogger{level: level}
}

func (l *dbLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logrus.Infof(msg, args...)
	}
}

func (l *dbLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logrus.Warnf(msg, args...)
	}
}

func (l *dbLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logrus.Errorf(msg, args...)
	}
}

func (l *dbLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := logrus.Fields{
		"rows":     rows,
		"duration": elapsed,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		logrus.WithFields(fields).WithError(err).Error(sql)
	case elapsed > slowThreshold:
		logrus.WithFields(fields).Warnf("slow query: %s", sql)
	case l.level >= gormlogger.Info:
		logrus.WithFields(fields).Trace(sql)
	}
}
