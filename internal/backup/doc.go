// Package backup implements generational expiry of backup artifacts.
//
// Backups are files named <entity>.<YYYYMMDD>-<weekday>.<suffix> stored per
// entity under <class>/<entity> in one or more artifact stores (local, S3,
// Azure, GCS). For every entity the retention engine scans the artifacts
// newest first and keeps:
//
// 1. Day: the Day most recent artifacts, unconditionally
// 2. Month: Month artifacts taken on the first Sunday of a month
// 3. Year: Year artifacts taken on the first Sunday of December
//
// Everything else expires. If the year tier is not filled, the newest expired
// artifact from the previous calendar year is kept as well. A policy with
// Day == 0 disables expiry for the entity.
//
// Core Components:
//
// - PlanRetention / ComputeExpirySet: the pure classification
// - RetentionManager: lists stores, plans, deletes with retry, collects a RunReport
// - ArtifactStore: storage abstraction with local and cloud providers
// - NotificationManager: delivers the run summary (Telegram, email, webhook, Slack, file)
// - Scheduler: cron driven runs
//
// Example usage:
//
//	cfg, err := backup.NewConfigLoader("backup.yaml").LoadConfig()
//	if err != nil {
//		return err
//	}
//
//	stores, err := backup.NewStorageProviderFactory().CreateMultipleStorageProviders(ctx, cfg.StorageConfigs())
//	if len(stores) == 0 {
//		return err
//	}
//
//	manager, err := backup.NewRetentionManager(stores, cfg, logger, backup.RetentionManagerOptions{})
//	if err != nil {
//		return err
//	}
//
//	report, err := manager.Run(ctx, backup.Selection{})
package backup
