package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// StorageProviderFactory creates artifact stores based on configuration
type StorageProviderFactory struct{}

// NewStorageProviderFactory creates a new storage provider factory
func NewStorageProviderFactory() *StorageProviderFactory {
	return &StorageProviderFactory{}
}

// CreateStorageProvider creates an artifact store based on the storage configuration
func (spf *StorageProviderFactory) CreateStorageProvider(ctx context.Context, config StorageConfig) (ArtifactStore, error) {
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid storage configuration", err)
	}

	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(config.Local)

	case StorageProviderS3:
		return NewS3StorageProvider(config.S3)

	case StorageProviderAzure:
		return NewAzureStorageProvider(config.Azure)

	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, config.GCS)

	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}

// GetSupportedProviders returns a list of supported storage provider types
func (spf *StorageProviderFactory) GetSupportedProviders() []StorageProviderType {
	return []StorageProviderType{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderAzure,
		StorageProviderGCS,
	}
}

// CreateMultipleStorageProviders creates one store per configuration. Stores
// that fail to initialise are skipped and their errors are returned joined
// together with the stores that were built. Without any store the result is
// a StorageError.
func (spf *StorageProviderFactory) CreateMultipleStorageProviders(ctx context.Context, configs []StorageConfig) ([]ArtifactStore, error) {
	if len(configs) == 0 {
		return nil, NewValidationError("at least one storage configuration is required", nil)
	}

	var stores []ArtifactStore
	var errs []error

	for i, config := range configs {
		store, err := spf.CreateStorageProvider(ctx, config)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create storage provider %d (%s): %w", i, config.Provider, err))
			continue
		}
		stores = append(stores, store)
	}

	if len(stores) == 0 {
		return nil, NewStorageError("failed to create any storage providers", errors.Join(errs...))
	}

	return stores, errors.Join(errs...)
}

// SplitErrors returns the individual errors of a joined error, or err itself
func SplitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// HealthCheckAll runs HealthCheck on every store that supports it, keyed by store name
func HealthCheckAll(ctx context.Context, stores []ArtifactStore) map[string]error {
	results := make(map[string]error, len(stores))
	for _, store := range stores {
		if checker, ok := store.(HealthChecker); ok {
			results[store.Name()] = checker.HealthCheck(ctx)
		} else {
			results[store.Name()] = nil
		}
	}
	return results
}

// normalizePrefix trims slashes and adds a single trailing one, "" stays ""
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// objectDirPrefix is the key prefix of all objects directly below dir
func objectDirPrefix(prefix, dir string) string {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return prefix
	}
	return prefix + dir + "/"
}

func objectKey(prefix, dir, name string) string {
	return objectDirPrefix(prefix, dir) + name
}
