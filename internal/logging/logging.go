// Package logging wraps logrus with the verbosity levels the bridge's
// teacher tool used as plain package-level counters (infof/debugf,
// gated by a -v count): here they become a small leveled Log type so
// the root Store can carry one per instance instead of a global.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Log is a thin, instance-scoped wrapper over a *logrus.Logger. The
// bridge never logs through the global logrus logger, so concurrent
// callers in the same process (e.g. tests) don't fight over its level.
type Log struct {
	l *logrus.Logger
}

// New builds a Log at the given verbosity: 0 mutes everything but
// warnings and errors, 1 adds info, 2+ adds debug - matching the
// teacher's "-v"/"-q" verbosity counter.
func New(verbosity int) *Log {
	l := logrus.New()
	switch {
	case verbosity <= 0:
		l.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.DebugLevel)
	}
	return &Log{l: l}
}

func (log *Log) Infof(format string, args ...interface{})  { log.l.Infof(format, args...) }
func (log *Log) Debugf(format string, args ...interface{}) { log.l.Debugf(format, args...) }
func (log *Log) Warnf(format string, args ...interface{})  { log.l.Warnf(format, args...) }
func (log *Log) Errorf(format string, args ...interface{}) { log.l.Errorf(format, args...) }

// WithField returns a derived entry carrying a structured field, for
// call sites that want one log line to carry e.g. the commit id being
// processed rather than interpolating it into the message.
func (log *Log) WithField(key string, value interface{}) *logrus.Entry {
	return log.l.WithField(key, value)
}
