package backup

import (
	"context"
	"io"
)

// ArtifactStore abstracts the location backup artifacts live in. Directories
// are slash separated and relative to the store root, e.g. "app/dsmr".
type ArtifactStore interface {
	// List returns the files directly inside dir
	List(ctx context.Context, dir string) ([]ArtifactInfo, error)
	// Open streams the content of a single artifact
	Open(ctx context.Context, dir, name string) (io.ReadCloser, error)
	// Delete removes a single artifact
	Delete(ctx context.Context, dir, name string) error
	// Exists reports whether dir is present. Object stores have no empty
	// directories, there dir exists when at least one object lies below it.
	Exists(ctx context.Context, dir string) (bool, error)
	// Name identifies the store in logs and reports
	Name() string
}

// HealthChecker is implemented by stores that can verify their backend is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Notifier delivers a finished run report
type Notifier interface {
	NotifyRun(ctx context.Context, report *RunReport) error
}
