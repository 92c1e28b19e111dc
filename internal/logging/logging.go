// Package logging provides the mutex-guarded logrus wrapper both
// entry points use, adapted from lxd's shared safe-logger idiom.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thread-safe wrapper around a single logrus.Logger.
type Logger struct {
	logger *logrus.Logger
	mu     sync.Mutex
}

// New builds a Logger that writes text-formatted, full-timestamp entries
// to stderr, matching lxd-user/main_daemon.go's setup.
func New() *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stderr)

	return &Logger{logger: l}
}

// SetLevel adjusts the minimum logged level.
func (l *Logger) SetLevel(level logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetLevel(level)
}

// Log emits msg at level with the given structured fields.
func (l *Logger) Log(level logrus.Level, msg string, fields logrus.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.WithFields(fields).Log(level, msg)
}

func (l *Logger) Debug(msg string, fields logrus.Fields) { l.Log(logrus.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields logrus.Fields)  { l.Log(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields logrus.Fields)  { l.Log(logrus.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields logrus.Fields) { l.Log(logrus.ErrorLevel, msg, fields) }
