package rtc

import (
	"github.com/edaniels/golog"
	"github.com/pion/logging"
)

type loggerFactory struct {
	logger golog.Logger
}

func (lf loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{lf.logger.Named(scope)}
}

type leveledLogger struct {
	logger golog.Logger
}

func (l leveledLogger) Trace(msg string)                          { l.logger.Debug(msg) }
func (l leveledLogger) Tracef(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l leveledLogger) Debug(msg string)                          { l.logger.Debug(msg) }
func (l leveledLogger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l leveledLogger) Info(msg string)                           { l.logger.Info(msg) }
func (l leveledLogger) Infof(format string, args ...interface{})  { l.logger.Infof(format, args...) }
func (l leveledLogger) Warn(msg string)                           { l.logger.Warn(msg) }
func (l leveledLogger) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l leveledLogger) Error(msg string)                          { l.logger.Error(msg) }
func (l leveledLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
