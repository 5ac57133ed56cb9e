// Package flog is the injectable logging facade used across foldcore.
//
// It exposes plain package-level Debugf/Infof/Warnf/Errorf helpers backed
// by logrus, so call sites never depend on a concrete logger type and a
// host application can redirect every log line with a single SetLogger
// call.
package flog

import "github.com/sirupsen/logrus"

// logger is the handle every package-level helper delegates to. It can be
// swapped wholesale with SetLogger, e.g. to route foldcore's log lines into
// a host application's own logrus instance.
var logger = logrus.StandardLogger()

// SetLogger replaces the logger used by the package-level helpers below.
// Passing nil restores the standard logrus logger.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		logger = logrus.StandardLogger()
		return
	}
	logger = l
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}
