// Package logger provides structured logging for agentscan
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	logger := logrus.New()

	// Set log level
	logger.SetLevel(level)

	// Use JSON formatter for structured logging in production
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		// Use text formatter for development
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: logger}
}

// NewDiscardLogger returns a logger that drops every entry
func NewDiscardLogger() *Logger {
	l := NewLogger(logrus.PanicLevel)
	l.SetOutput(io.Discard)
	return l
}

type ctxKey string

const runIDKey ctxKey = "run_id"

// ContextWithRunID tags ctx with the run identifier picked up by WithContext
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithContext adds context-specific fields to the logger
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	if runID := ctx.Value(runIDKey); runID != nil {
		entry = entry.WithField("run_id", runID)
	}

	return entry
}

// WithTarget adds target-specific fields to the logger
func (l *Logger) WithTarget(domain, sessionID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"domain":     domain,
		"session_id": sessionID,
	})
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// LogStage logs the start and end of a collaborator stage call
func (l *Logger) LogStage(stage string, fields Fields, fn func() error) error {
	start := time.Now()

	entry := l.WithFields(fields)
	entry.WithFields(logrus.Fields{
		"stage":  stage,
		"action": "start",
	}).Debug("Stage invoked")

	err := fn()

	entry = entry.WithFields(logrus.Fields{
		"stage":    stage,
		"action":   "complete",
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Stage failed")
	} else {
		entry.Debug("Stage completed")
	}

	return err
}

// Default logger instance
var defaultLogger = NewLogger(logrus.InfoLevel)

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

// Default returns the process-wide logger
func Default() *Logger {
	return defaultLogger
}
