// Package log provides the process logger, backed by zap.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

var (
	base  = zap.NewNop()
	sugar = base.Sugar()
)

// Init initializes the package-level logger. Debug selects zap's development
// config (console encoder, debug level).
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("init zap logger: %w", err)
	}
	base = l
	sugar = l.Sugar()
	return nil
}

// Logger returns the sugared logger. Until Init runs it is a no-op logger.
func Logger() *zap.SugaredLogger {
	return sugar
}

func Sync() {
	_ = sugar.Sync()
}

func Debugf(template string, args ...any) { Logger().Debugf(template, args...) }
func Infof(template string, args ...any)  { Logger().Infof(template, args...) }
func Warnf(template string, args ...any)  { Logger().Warnf(template, args...) }
func Errorf(template string, args ...any) { Logger().Errorf(template, args...) }

// Infow logs a message with structured key/value pairs.
func Infow(msg string, keysAndValues ...any) { Logger().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...any) { Logger().Warnw(msg, keysAndValues...) }
