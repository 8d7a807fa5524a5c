package backup

import (
	"context"
	"fmt"
	"path"
	"time"

	apperrors "backup-expiry/internal/errors"
	"backup-expiry/internal/logging"
)

// DefaultRetryBaseDelay is the first backoff step between deletion attempts
const DefaultRetryBaseDelay = time.Second

// Selection narrows a run. The zero value is a scheduled run over
// everything that is enabled and due today.
type Selection struct {
	// Manual runs ignore the class weekday schedule and entity enabled flags
	Manual bool
	// Class and Name select a single entity, Name may be empty to select a whole class
	Class EntityClass
	Name  string
	// Image selects the image cleanup
	Image bool
}

// IsEmpty reports whether a selection names nothing, which selects everything
func (s Selection) IsEmpty() bool {
	return s.Class == "" && !s.Image
}

// RetentionManagerOptions tune a RetentionManager
type RetentionManagerOptions struct {
	DryRun bool
	// Now is the clock, time.Now when nil
	Now func() time.Time
	// RetryBaseDelay is the first backoff between deletion attempts
	RetryBaseDelay time.Duration
	Audit          *AuditLogger
	Metrics        *MetricsCollector
	Verifier       *ArtifactVerifier
}

// RetentionManager applies the configured retention policies to every
// configured store and deletes the expired artifacts
type RetentionManager struct {
	stores   []ArtifactStore
	config   *SystemConfig
	logger   *logging.Logger
	audit    *AuditLogger
	metrics  *MetricsCollector
	verifier *ArtifactVerifier
	retry    *apperrors.RetryHandler
	now      func() time.Time
	dryRun   bool
}

// NewRetentionManager creates a new retention manager over stores. The
// config must already be resolved.
func NewRetentionManager(stores []ArtifactStore, config *SystemConfig, logger *logging.Logger, opts RetentionManagerOptions) (*RetentionManager, error) {
	if len(stores) == 0 {
		return nil, NewConfigurationError("at least one artifact store is required", nil)
	}
	if config == nil {
		return nil, NewConfigurationError("configuration is required", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	audit := opts.Audit
	if audit == nil {
		var err error
		audit, err = NewAuditLogger(AuditLoggerConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	verifier := opts.Verifier
	if verifier == nil {
		verifier = NewArtifactVerifier()
	}

	retryConfig := apperrors.DefaultRetryConfig()
	retryConfig.MaxAttempts = config.General.Retry + 1
	retryConfig.BaseDelay = baseDelay
	retryConfig.MaxDelay = 30 * baseDelay

	return &RetentionManager{
		stores:   stores,
		config:   config,
		logger:   logger,
		audit:    audit,
		metrics:  opts.Metrics,
		verifier: verifier,
		retry:    apperrors.NewRetryHandler(retryConfig),
		now:      now,
		dryRun:   opts.DryRun,
	}, nil
}

// IsDryRun reports whether deletions are only logged
func (rm *RetentionManager) IsDryRun() bool {
	return rm.dryRun
}

// Stores returns the stores the manager works on
func (rm *RetentionManager) Stores() []ArtifactStore {
	return rm.stores
}

// Run executes one expiry run for sel and returns its report. Per entity
// failures are collected in the report; only an invalid selection is
// returned as error.
func (rm *RetentionManager) Run(ctx context.Context, sel Selection) (*RunReport, error) {
	if sel.Manual && sel.Class != "" && sel.Name != "" {
		if _, ok := rm.config.FindEntity(sel.Class, sel.Name); !ok {
			return nil, NewNotFoundError(fmt.Sprintf("%s '%s' is not configured", sel.Class, sel.Name), nil)
		}
	}

	runID := logging.GetRunIDFromContext(ctx)
	if runID == "" {
		runID = rm.audit.GetCorrelationID()
		ctx = logging.CreateContextWithRunID(ctx, runID)
	}

	report := NewRunReport(runID, rm.now())
	report.DryRun = rm.dryRun
	report.Manual = sel.Manual

	audit := rm.audit.WithCorrelationID(runID)
	done := audit.LogRunStart(ctx, sel.Manual, rm.dryRun)

	if !rm.config.General.Expiry {
		rm.logger.Debug("Expiry is fully disabled")
	} else {
		for _, store := range rm.stores {
			if err := ctx.Err(); err != nil {
				report.AddError(fmt.Sprintf("Run interrupted: %v", err))
				break
			}
			rm.runStore(ctx, store, sel, report)
		}
	}

	report.Finish(rm.now())
	done(report)

	if rm.metrics != nil {
		rm.metrics.RecordRun(report)
	}

	return report, nil
}

func (rm *RetentionManager) runStore(ctx context.Context, store ArtifactStore, sel Selection, report *RunReport) {
	weekday := ISOWeekday(rm.now())

	for _, ref := range rm.selectEntities(sel, weekday) {
		if ctx.Err() != nil {
			return
		}
		report.AddEntity(rm.CleanupEntity(ctx, store, ref.class, ref.entity, report))
	}

	rm.runImages(ctx, store, sel, weekday, report)
}

type entityRef struct {
	class  EntityClass
	entity EntityConfig
}

// selectEntities returns the entities sel covers on the given ISO weekday
func (rm *RetentionManager) selectEntities(sel Selection, weekday int) []entityRef {
	var refs []entityRef

	for _, class := range AllEntityClasses {
		if sel.Manual && !sel.IsEmpty() && sel.Class != class {
			continue
		}

		if !sel.Manual && !rm.config.ClassPolicy(class).RunsOn(weekday) {
			rm.logger.Debugf("%s: No expiry today", class)
			continue
		}

		for _, entity := range rm.config.Entities(class) {
			if sel.Manual && sel.Name != "" && entity.Name != sel.Name {
				continue
			}
			if !sel.Manual && !entity.IsEnabled() {
				rm.logger.Debugf("%s %s: disabled, skipping expiry", class, entity.Name)
				continue
			}
			refs = append(refs, entityRef{class: class, entity: entity})
		}
	}

	return refs
}

// Plan classifies the artifacts of every entity sel covers in every store
// without deleting anything. Listing failures are returned as messages.
func (rm *RetentionManager) Plan(ctx context.Context, sel Selection) ([]*EntityResult, []string) {
	var results []*EntityResult
	var errs []string

	weekday := ISOWeekday(rm.now())
	for _, store := range rm.stores {
		for _, ref := range rm.selectEntities(sel, weekday) {
			if err := ctx.Err(); err != nil {
				return results, append(errs, fmt.Sprintf("Plan interrupted: %v", err))
			}

			result, err := rm.PlanEntity(ctx, store, ref.class, ref.entity)
			if err != nil {
				errs = append(errs, reportMessage(err))
				result.Skipped = true
				result.SkipReason = "listing failed"
			}
			results = append(results, result)
		}
	}

	return results, errs
}

// Verify reads back and decodes the newest artifact of every entity sel
// covers in every store
func (rm *RetentionManager) Verify(ctx context.Context, sel Selection) []*VerifyOutcome {
	var outcomes []*VerifyOutcome

	weekday := ISOWeekday(rm.now())
	for _, store := range rm.stores {
		for _, ref := range rm.selectEntities(sel, weekday) {
			outcome := &VerifyOutcome{
				Store:  store.Name(),
				Class:  ref.class,
				Entity: ref.entity.Name,
			}

			result, err := rm.verifier.VerifyLatest(ctx, store, EntityDir(ref.class, ref.entity.Name), ref.entity.Name)
			if err != nil {
				outcome.Error = reportMessage(err)
				rm.logger.WithFields(map[string]interface{}{
					"store":  store.Name(),
					"entity": ref.entity.Name,
					"error":  outcome.Error,
				}).Error("Artifact verification failed")
			} else {
				outcome.Result = result
			}
			outcomes = append(outcomes, outcome)
		}
	}

	return outcomes
}

func (rm *RetentionManager) runImages(ctx context.Context, store ArtifactStore, sel Selection, weekday int, report *RunReport) {
	if sel.Manual && !sel.IsEmpty() && !sel.Image {
		return
	}
	if !rm.config.Image.Cleanup {
		rm.logger.Debug("Cleanup: Image cleanup disabled")
		return
	}
	// Images follow the database schedule
	if !sel.Manual && !rm.config.ExpiryDB.RunsOn(weekday) {
		rm.logger.Debug("expiry_image: No image cleanup today")
		return
	}

	result := rm.CleanupImages(ctx, store, report)
	report.AddImageCleanup(result)
}

// EntityDir returns the store directory holding the artifacts of an entity
func EntityDir(class EntityClass, name string) string {
	return path.Join(string(class), name)
}

// PlanEntity lists and classifies the artifacts of one entity without deleting anything
func (rm *RetentionManager) PlanEntity(ctx context.Context, store ArtifactStore, class EntityClass, entity EntityConfig) (*EntityResult, error) {
	result := &EntityResult{
		Store:  store.Name(),
		Class:  class,
		Entity: entity.Name,
		Policy: entity.Policy,
	}

	dir := EntityDir(class, entity.Name)
	infos, err := store.List(ctx, dir)
	if err != nil {
		if IsNotFound(err) {
			return result, NewNotFoundError(fmt.Sprintf("Directory '%s' does not exist", storePath(store, dir)), nil)
		}
		return result, fmt.Errorf("%s %s: failed to list '%s': %w", class, entity.Name, storePath(store, dir), err)
	}

	if entity.Policy.IsExpiryDisabled() {
		result.Skipped = true
		result.SkipReason = "day=0 configured"
		result.Plan = PlanRetention(nil, entity.Policy, rm.now())
		return result, nil
	}

	artifacts, invalid := ParseArtifacts(entity.Name, Names(infos))
	result.Invalid = invalid
	result.Plan = PlanRetention(artifacts, entity.Policy, rm.now())
	result.Expired = len(result.Plan.Expired())
	result.Retained = len(result.Plan.Decisions) - result.Expired

	return result, nil
}

// CleanupEntity plans one entity in store and deletes its expired artifacts.
// Every failure is added to report; the returned result is never nil.
func (rm *RetentionManager) CleanupEntity(ctx context.Context, store ArtifactStore, class EntityClass, entity EntityConfig, report *RunReport) *EntityResult {
	label := fmt.Sprintf("%s %s", class, entity.Name)

	result, err := rm.PlanEntity(ctx, store, class, entity)
	if err != nil {
		msg := reportMessage(err)
		report.AddError(msg)
		rm.logger.Error(msg)
		result.Skipped = true
		result.SkipReason = "listing failed"
		return result
	}

	if result.Plan.Skipped {
		rm.logger.Warnf("%s: has day=0 configured, skipping expiry", label)
		return result
	}

	rm.logger.Debugf("%s: expiry started", label)

	for _, invalid := range result.Invalid {
		rm.logger.LogInvalidArtifact(entity.Name, storePath(store, EntityDir(class, entity.Name), invalid.Name), invalid.Reason)
	}
	for _, decision := range result.Plan.Decisions {
		rm.logger.LogRetentionDecision(entity.Name, decision.Artifact.Name, string(decision.Reason), decision.Remaining)
	}

	expired := result.Plan.Expired()
	if len(expired) > 0 && rm.config.General.VerifyBeforeCleanup {
		verified, err := rm.verifier.VerifyLatest(ctx, store, EntityDir(class, entity.Name), entity.Name)
		if err != nil {
			msg := fmt.Sprintf("%s: newest artifact failed verification, skipping deletion: %v", label, err)
			report.AddError(msg)
			rm.logger.Error(msg)
			result.Skipped = true
			result.SkipReason = "verification failed"
			rm.recordEntity(result)
			return result
		}
		result.Verified = verified
	}

	rm.deleteExpired(ctx, store, result, expired, report)
	rm.recordEntity(result)

	return result
}

func (rm *RetentionManager) deleteExpired(ctx context.Context, store ArtifactStore, result *EntityResult, expired []BackupArtifact, report *RunReport) {
	dir := EntityDir(result.Class, result.Entity)

	for _, artifact := range expired {
		if rm.dryRun {
			rm.audit.LogDeletion(store, result, artifact.Name, true, nil)
			continue
		}

		err := rm.retry.Retry(ctx, func() error {
			return store.Delete(ctx, dir, artifact.Name)
		})
		rm.audit.LogDeletion(store, result, artifact.Name, false, err)

		if err != nil {
			result.Failed = append(result.Failed, artifact.Name)
			report.AddError(fmt.Sprintf("%s: '%s' FAILED deletion. Msg=%v",
				result.Label(), storePath(store, dir, artifact.Name), err))
			continue
		}
		result.Deleted = append(result.Deleted, artifact.Name)
	}
}

func (rm *RetentionManager) recordEntity(result *EntityResult) {
	if rm.metrics != nil {
		rm.metrics.RecordEntity(result)
	}
}

// reportMessage renders err for the run report without the error type prefix
func reportMessage(err error) string {
	if backupErr, ok := err.(*BackupError); ok && backupErr.Cause == nil {
		return backupErr.Message
	}
	return err.Error()
}

// storePath renders a location inside a store for messages
func storePath(store ArtifactStore, elem ...string) string {
	return store.Name() + "/" + path.Join(elem...)
}
