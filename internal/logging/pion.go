package logging

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// PionFactory routes pion's internal logging (ice, dtls, sctp, ...) onto zap.
// Trace is folded into Debug since zap has no finer level.
type PionFactory struct {
	Logger *zap.Logger
}

// NewLogger implements logging.LoggerFactory.
func (f PionFactory) NewLogger(scope string) logging.LeveledLogger {
	l := f.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &pionLogger{s: l.Named("pion").With(zap.String("scope", scope)).Sugar()}
}

type pionLogger struct {
	s *zap.SugaredLogger
}

func (l *pionLogger) Trace(msg string)                          { l.s.Debug(msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *pionLogger) Debug(msg string)                          { l.s.Debug(msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *pionLogger) Info(msg string)                           { l.s.Info(msg) }
func (l *pionLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *pionLogger) Warn(msg string)                           { l.s.Warn(msg) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *pionLogger) Error(msg string)                          { l.s.Error(msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }
