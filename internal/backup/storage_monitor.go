package backup

import (
	"context"
	"fmt"
	"time"

	"backup-expiry/internal/logging"
)

// StorageMonitor reports usage and health of the artifact stores
type StorageMonitor struct {
	stores []ArtifactStore
	config *SystemConfig
	logger *logging.Logger
	now    func() time.Time
}

// StorageUsageReport provides storage usage per store and entity
type StorageUsageReport struct {
	TotalArtifacts int              `json:"total_artifacts" yaml:"total_artifacts"`
	TotalSize      int64            `json:"total_size" yaml:"total_size"`
	Entities       []*EntityUsage   `json:"entities" yaml:"entities"`
	Errors         []string         `json:"errors,omitempty" yaml:"errors,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at" yaml:"generated_at"`
	StorageByAge   map[string]int   `json:"storage_by_age" yaml:"storage_by_age"`
	StorageByStore map[string]int64 `json:"storage_by_store" yaml:"storage_by_store"`
}

// EntityUsage represents storage usage for one entity in one store
type EntityUsage struct {
	Store          string      `json:"store" yaml:"store"`
	Class          EntityClass `json:"class" yaml:"class"`
	Entity         string      `json:"entity" yaml:"entity"`
	ArtifactCount  int         `json:"artifact_count" yaml:"artifact_count"`
	InvalidCount   int         `json:"invalid_count" yaml:"invalid_count"`
	TotalSize      int64       `json:"total_size" yaml:"total_size"`
	ExpiredSize    int64       `json:"expired_size" yaml:"expired_size"`
	OldestArtifact time.Time   `json:"oldest_artifact" yaml:"oldest_artifact"`
	NewestArtifact time.Time   `json:"newest_artifact" yaml:"newest_artifact"`
}

// StoreHealth is the result of a connectivity check against one store
type StoreHealth struct {
	Store        string        `json:"store" yaml:"store"`
	Status       string        `json:"status" yaml:"status"` // healthy, critical
	ResponseTime time.Duration `json:"response_time" yaml:"response_time"`
	Issue        string        `json:"issue,omitempty" yaml:"issue,omitempty"`
}

// NewStorageMonitor creates a storage monitor over stores
func NewStorageMonitor(stores []ArtifactStore, config *SystemConfig, logger *logging.Logger) *StorageMonitor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &StorageMonitor{
		stores: stores,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// GetStorageUsage lists every configured entity in every store. ExpiredSize
// is what the next run would free with the current policies.
func (sm *StorageMonitor) GetStorageUsage(ctx context.Context) (*StorageUsageReport, error) {
	sm.logger.Debug("Generating storage usage report")

	now := sm.now()
	report := &StorageUsageReport{
		GeneratedAt:    now,
		StorageByAge:   make(map[string]int),
		StorageByStore: make(map[string]int64),
	}

	for _, store := range sm.stores {
		for _, class := range AllEntityClasses {
			for _, entity := range sm.config.Entities(class) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				usage, err := sm.entityUsage(ctx, store, class, entity, now, report.StorageByAge)
				if err != nil {
					report.Errors = append(report.Errors, reportMessage(err))
					continue
				}

				report.Entities = append(report.Entities, usage)
				report.TotalArtifacts += usage.ArtifactCount
				report.TotalSize += usage.TotalSize
				report.StorageByStore[store.Name()] += usage.TotalSize
			}
		}
	}

	return report, nil
}

func (sm *StorageMonitor) entityUsage(ctx context.Context, store ArtifactStore, class EntityClass, entity EntityConfig, now time.Time, byAge map[string]int) (*EntityUsage, error) {
	dir := EntityDir(class, entity.Name)
	infos, err := store.List(ctx, dir)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("Directory '%s' does not exist", storePath(store, dir)), nil)
		}
		return nil, err
	}

	usage := &EntityUsage{
		Store:  store.Name(),
		Class:  class,
		Entity: entity.Name,
	}

	sizes := make(map[string]int64, len(infos))
	for _, info := range infos {
		sizes[info.Name] = info.Size
	}

	artifacts, invalid := ParseArtifacts(entity.Name, Names(infos))
	usage.ArtifactCount = len(artifacts)
	usage.InvalidCount = len(invalid)

	for _, artifact := range artifacts {
		usage.TotalSize += sizes[artifact.Name]
		if usage.OldestArtifact.IsZero() || artifact.CaptureDate.Before(usage.OldestArtifact) {
			usage.OldestArtifact = artifact.CaptureDate
		}
		if artifact.CaptureDate.After(usage.NewestArtifact) {
			usage.NewestArtifact = artifact.CaptureDate
		}
		byAge[ageGroup(now.Sub(artifact.CaptureDate))]++
	}

	for _, artifact := range ComputeExpirySet(artifacts, entity.Policy, now) {
		usage.ExpiredSize += sizes[artifact.Name]
	}

	return usage, nil
}

func ageGroup(age time.Duration) string {
	switch {
	case age <= 7*24*time.Hour:
		return "week"
	case age <= 31*24*time.Hour:
		return "month"
	case age <= 366*24*time.Hour:
		return "year"
	default:
		return "older"
	}
}

// MonitorStorageHealth performs health checks on all stores
func (sm *StorageMonitor) MonitorStorageHealth(ctx context.Context) []*StoreHealth {
	var results []*StoreHealth

	for _, store := range sm.stores {
		health := &StoreHealth{
			Store:  store.Name(),
			Status: "healthy",
		}

		start := time.Now()
		var err error
		if checker, ok := store.(HealthChecker); ok {
			err = checker.HealthCheck(ctx)
		} else {
			_, err = store.Exists(ctx, "")
		}
		health.ResponseTime = time.Since(start)

		if err != nil {
			health.Status = "critical"
			health.Issue = err.Error()
			sm.logger.WithFields(map[string]interface{}{
				"store": store.Name(),
				"error": err.Error(),
			}).Warn("Storage health check failed")
		}

		results = append(results, health)
	}

	return results
}
