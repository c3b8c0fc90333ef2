package logging

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronLogger routes robfig/cron's key/value logging into zap.
func CronLogger(l *zap.Logger) cron.Logger {
	return cronLogger{s: l.Sugar()}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.s.Debugw("[cron] "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.s.Errorw("[cron] "+msg, append(keysAndValues, "error", err)...)
}
