// Package logrus adapts a logrus entry to fallcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/fallcache"
)

var _ fallcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=fallcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "fallcache")}
}

func (l Logger) Debug(msg string, f fallcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f fallcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f fallcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f fallcache.Fields) { l.with(f).Error(msg) }

// with routes an "err" field through WithError so logrus formats it.
func (l Logger) with(f fallcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
