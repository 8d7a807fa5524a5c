package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backup-expiry/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLogger writes the operational log of a run, and optionally an append
// only JSON audit trail of every deletion, tagged with a correlation ID
type AuditLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	correlationID string
}

// AuditLoggerConfig holds configuration for audit logging
type AuditLoggerConfig struct {
	Logger        *logging.Logger
	AuditLogFile  string
	CorrelationID string
}

// AuditLogEntry represents one audit trail record
type AuditLogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Resource      string                 `json:"resource"`
	Action        string                 `json:"action"`
	Result        string                 `json:"result"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// NewRunID returns a fresh correlation ID for a run
func NewRunID() string {
	return uuid.New().String()
}

// NewAuditLogger creates a new audit logger. The audit trail is only written
// when AuditLogFile is set.
func NewAuditLogger(config AuditLoggerConfig) (*AuditLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = NewRunID()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	al := &AuditLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.AuditLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.AuditLogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditLogger := logrus.New()
		auditLogger.SetOutput(&lumberjack.Logger{
			Filename:   config.AuditLogFile,
			MaxSize:    10,
			MaxBackups: 5,
		})
		auditLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		auditLogger.SetLevel(logrus.InfoLevel)

		al.auditLogger = auditLogger
	}

	return al, nil
}

// GetCorrelationID returns the current correlation ID
func (al *AuditLogger) GetCorrelationID() string {
	return al.correlationID
}

// WithCorrelationID creates a new logger with a different correlation ID
func (al *AuditLogger) WithCorrelationID(correlationID string) *AuditLogger {
	return &AuditLogger{
		logger:        al.logger,
		auditLogger:   al.auditLogger,
		correlationID: correlationID,
	}
}

// Logger returns the operational logger
func (al *AuditLogger) Logger() *logging.Logger {
	return al.logger
}

// LogRunStart records the start of a run and returns a function recording its end
func (al *AuditLogger) LogRunStart(ctx context.Context, manual, dryRun bool) func(*RunReport) {
	al.logger.WithContext(ctx).WithFields(logrus.Fields{
		"correlation_id": al.correlationID,
		"manual":         manual,
		"dry_run":        dryRun,
	}).Info("Expiry run started")

	al.logAudit("run", "start", "started", map[string]interface{}{
		"manual":  manual,
		"dry_run": dryRun,
	})

	return func(report *RunReport) {
		result := "success"
		if report.HasErrors() {
			result = "failure"
		}
		al.logAudit("run", "complete", result, map[string]interface{}{
			"entities":    len(report.Entities),
			"deleted":     report.TotalDeleted(),
			"error_count": report.ErrorCount(),
			"duration":    report.Duration().String(),
		})
	}
}

// LogDeletion records the removal of one artifact in both logs
func (al *AuditLogger) LogDeletion(store ArtifactStore, result *EntityResult, artifact string, dryRun bool, err error) {
	al.logger.LogArtifactDeletion(store.Name(), result.Entity, artifact, dryRun, err)

	if dryRun {
		return
	}

	outcome := "success"
	details := map[string]interface{}{
		"store":    store.Name(),
		"class":    string(result.Class),
		"entity":   result.Entity,
		"artifact": artifact,
	}
	if err != nil {
		outcome = "failure"
		details["error"] = logging.RedactSecrets(err.Error())
	}

	al.logAudit("artifact", "delete", outcome, details)
}

// LogImageDeletion records the removal of a container image archive
func (al *AuditLogger) LogImageDeletion(store ArtifactStore, image string, dryRun bool, err error) {
	al.logger.LogArtifactDeletion(store.Name(), "image", image, dryRun, err)

	if dryRun {
		return
	}

	outcome := "success"
	details := map[string]interface{}{
		"store": store.Name(),
		"image": image,
	}
	if err != nil {
		outcome = "failure"
		details["error"] = err.Error()
	}

	al.logAudit("image", "delete", outcome, details)
}

// logAudit logs an audit trail entry
func (al *AuditLogger) logAudit(resource, action, result string, details map[string]interface{}) {
	if al.auditLogger == nil {
		return
	}

	entry := AuditLogEntry{
		Timestamp:     time.Now(),
		CorrelationID: al.correlationID,
		Resource:      resource,
		Action:        action,
		Result:        result,
		Details:       details,
	}

	al.auditLogger.WithFields(logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"operation":      fmt.Sprintf("%s_%s", resource, action),
		"resource":       entry.Resource,
		"action":         entry.Action,
		"result":         entry.Result,
		"details":        entry.Details,
	}).Info("Audit log entry")
}
