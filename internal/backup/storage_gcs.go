package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider implements ArtifactStore for Google Cloud Storage
type GCSStorageProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSStorageProvider creates a new GCSStorageProvider instance
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("GCS storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid GCS storage configuration", err)
	}

	var client *storage.Client
	var err error

	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		// Use default credentials (e.g., from environment or metadata server)
		client, err = storage.NewClient(ctx)
	}

	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStorageProvider{
		client:     client,
		bucketName: config.Bucket,
		prefix:     normalizePrefix(config.Prefix),
	}, nil
}

// List returns the objects directly below dir
func (gcsp *GCSStorageProvider) List(ctx context.Context, dir string) ([]ArtifactInfo, error) {
	dirPrefix := objectDirPrefix(gcsp.prefix, dir)

	it := gcsp.client.Bucket(gcsp.bucketName).Objects(ctx, &storage.Query{
		Prefix:    dirPrefix,
		Delimiter: "/",
	})

	var infos []ArtifactInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to list gs://%s/%s", gcsp.bucketName, dirPrefix), err)
		}
		// Synthetic directory entries only carry a Prefix
		if attrs.Name == "" {
			continue
		}
		name := strings.TrimPrefix(attrs.Name, dirPrefix)
		if name == "" {
			continue
		}
		infos = append(infos, ArtifactInfo{
			Name:    name,
			Size:    attrs.Size,
			ModTime: attrs.Updated,
		})
	}

	if len(infos) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("directory 'gs://%s/%s' does not exist", gcsp.bucketName, dirPrefix), nil)
	}

	return infos, nil
}

// Open downloads an artifact as a stream
func (gcsp *GCSStorageProvider) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	objectName := objectKey(gcsp.prefix, dir, name)

	reader, err := gcsp.client.Bucket(gcsp.bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact 'gs://%s/%s' not found", gcsp.bucketName, objectName), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download gs://%s/%s", gcsp.bucketName, objectName), err)
	}
	return reader, nil
}

// Delete removes a single artifact object
func (gcsp *GCSStorageProvider) Delete(ctx context.Context, dir, name string) error {
	objectName := objectKey(gcsp.prefix, dir, name)

	if err := gcsp.client.Bucket(gcsp.bucketName).Object(objectName).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return NewNotFoundError(fmt.Sprintf("artifact 'gs://%s/%s' not found", gcsp.bucketName, objectName), err)
		}
		return NewStorageError(fmt.Sprintf("failed to delete object %s", objectName), err)
	}
	return nil
}

// Exists reports whether any object lives below dir
func (gcsp *GCSStorageProvider) Exists(ctx context.Context, dir string) (bool, error) {
	it := gcsp.client.Bucket(gcsp.bucketName).Objects(ctx, &storage.Query{
		Prefix: objectDirPrefix(gcsp.prefix, dir),
	})
	_, err := it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError("failed to list GCS objects", err)
	}
	return true, nil
}

// Name identifies the store
func (gcsp *GCSStorageProvider) Name() string {
	return fmt.Sprintf("gs://%s/%s", gcsp.bucketName, gcsp.prefix)
}

// HealthCheck verifies that the storage provider is accessible and functional
func (gcsp *GCSStorageProvider) HealthCheck(ctx context.Context) error {
	bucket := gcsp.client.Bucket(gcsp.bucketName)

	if _, err := bucket.Attrs(ctx); err != nil {
		return NewStorageError("GCS storage provider health check failed: bucket not accessible", err)
	}

	// Try to list objects to verify permissions
	it := bucket.Objects(ctx, &storage.Query{Prefix: gcsp.prefix})
	_, err := it.Next()
	if err != nil && err != iterator.Done {
		return NewStorageError("GCS storage provider health check failed: cannot list objects", err)
	}

	return nil
}

// Close closes the GCS client
func (gcsp *GCSStorageProvider) Close() error {
	return gcsp.client.Close()
}
