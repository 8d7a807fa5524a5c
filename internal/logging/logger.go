package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Log file rotation defaults
const (
	DefaultLogFileMaxSizeMB  = 1
	DefaultLogFileMaxBackups = 3
)

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
	// Rotation of LogFile, zero values use the defaults above
	LogFileMaxSizeMB  int
	LogFileMaxBackups int
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   false,
		})
	}

	logger.SetLevel(toLogrusLevel(config.Level))

	if config.ShowCaller {
		logger.SetReportCaller(true)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	if config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", config.LogFile, err)
		}

		maxSize := config.LogFileMaxSizeMB
		if maxSize <= 0 {
			maxSize = DefaultLogFileMaxSizeMB
		}
		maxBackups := config.LogFileMaxBackups
		if maxBackups <= 0 {
			maxBackups = DefaultLogFileMaxBackups
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}

		// Use multi-writer to write to both file and stdout
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, fileWriter))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	config := Config{
		Level:      LogLevelNormal,
		Output:     os.Stdout,
		Format:     "text",
		ShowCaller: false,
	}

	logger, _ := NewLogger(config)
	return logger
}

// NewDiscardLogger creates a logger that drops everything, for tests
func NewDiscardLogger() *Logger {
	logger, _ := NewLogger(Config{Level: LogLevelDebug, Output: io.Discard})
	return logger
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelQuiet:
		return logrus.ErrorLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	case LogLevelDebug:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// WithContext returns a logger with context fields
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.logger.WithContext(ctx)

	if runID := GetRunIDFromContext(ctx); runID != "" {
		entry = entry.WithField("run_id", runID)
	}

	return entry
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Retention logging methods

// LogRetentionDecision logs the outcome for one artifact. Kept artifacts are
// logged at debug level, expired ones at info.
func (l *Logger) LogRetentionDecision(entity, artifact, reason string, remaining int) {
	fields := logrus.Fields{
		"operation": "retention_decision",
		"entity":    entity,
		"artifact":  artifact,
		"reason":    reason,
	}

	switch reason {
	case "expired":
		l.logger.WithFields(fields).Info("Artifact expired")
	case "year-guard":
		fields["remaining"] = remaining
		l.logger.WithFields(fields).Info("Artifact should NOT be deleted (year)")
	default:
		fields["remaining"] = remaining
		l.logger.WithFields(fields).Debugf("Artifact NOT expired (%s, %d)", reason, remaining)
	}
}

// LogArtifactDeletion logs the result of deleting one artifact
func (l *Logger) LogArtifactDeletion(store, entity, artifact string, dryRun bool, err error) {
	fields := logrus.Fields{
		"operation": "artifact_deletion",
		"store":     store,
		"entity":    entity,
		"artifact":  artifact,
		"dry_run":   dryRun,
	}

	switch {
	case err != nil:
		fields["error"] = RedactSecrets(err.Error())
		l.logger.WithFields(fields).Error("Artifact deletion FAILED")
	case dryRun:
		l.logger.WithFields(fields).Info("Artifact would be deleted")
	default:
		l.logger.WithFields(fields).Info("Artifact DELETED")
	}
}

// LogInvalidArtifact logs a listed file that does not follow the naming scheme
func (l *Logger) LogInvalidArtifact(entity, name, reason string) {
	l.logger.WithFields(logrus.Fields{
		"operation": "artifact_parse",
		"entity":    entity,
		"artifact":  name,
		"reason":    reason,
	}).Warn("Ignoring file with unrecognized name")
}

// LogRunSummary logs the totals of a finished run
func (l *Logger) LogRunSummary(runID string, entities, deleted, errorCount int, duration time.Duration) {
	fields := logrus.Fields{
		"operation":   "run_summary",
		"run_id":      runID,
		"entities":    entities,
		"deleted":     deleted,
		"error_count": errorCount,
		"duration":    duration.String(),
	}

	if errorCount > 0 {
		l.logger.WithFields(fields).Errorf("%d error(s) found during run", errorCount)
	} else {
		l.logger.WithFields(fields).Info("No error(s) found during run")
	}
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal(msg)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(toLogrusLevel(level))
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	switch level {
	case LogLevelQuiet, LogLevelNormal, LogLevelVerbose, LogLevelDebug:
		return l.logger.IsLevelEnabled(toLogrusLevel(level))
	default:
		return false
	}
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}

	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		duration := time.Since(startTime)
		logFields["status"] = "completed"
		logFields["duration"] = duration.String()

		if err != nil {
			logFields["error"] = RedactSecrets(err.Error())
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}

type contextKey string

const runIDKey contextKey = "run_id"

// CreateContextWithRunID creates a context carrying the run correlation ID
func CreateContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunIDFromContext extracts the run correlation ID from context
func GetRunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

var botTokenPattern = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// RedactSecrets masks Telegram bot tokens that end up in request URLs and errors
func RedactSecrets(s string) string {
	return botTokenPattern.ReplaceAllString(s, "bot***")
}
