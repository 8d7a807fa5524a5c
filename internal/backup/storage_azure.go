package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider implements ArtifactStore for Azure Blob Storage
type AzureStorageProvider struct {
	serviceURL    azblob.ServiceURL
	containerName string
	prefix        string
}

// NewAzureStorageProvider creates a new AzureStorageProvider instance
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("Azure storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStorageProvider{
		serviceURL:    azblob.NewServiceURL(*serviceURL, pipeline),
		containerName: config.ContainerName,
		prefix:        normalizePrefix(config.Prefix),
	}, nil
}

// List returns the blobs directly below dir
func (azp *AzureStorageProvider) List(ctx context.Context, dir string) ([]ArtifactInfo, error) {
	dirPrefix := objectDirPrefix(azp.prefix, dir)
	containerURL := azp.serviceURL.NewContainerURL(azp.containerName)

	var infos []ArtifactInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := containerURL.ListBlobsHierarchySegment(ctx, marker, "/", azblob.ListBlobsSegmentOptions{
			Prefix: dirPrefix,
		})
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to list blobs below '%s'", dirPrefix), err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			name := strings.TrimPrefix(blob.Name, dirPrefix)
			if name == "" {
				continue
			}
			info := ArtifactInfo{
				Name:    name,
				ModTime: blob.Properties.LastModified,
			}
			if blob.Properties.ContentLength != nil {
				info.Size = *blob.Properties.ContentLength
			}
			infos = append(infos, info)
		}

		marker = listResponse.NextMarker
	}

	if len(infos) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("directory '%s/%s' does not exist", azp.containerName, dirPrefix), nil)
	}

	return infos, nil
}

// Open downloads an artifact as a stream
func (azp *AzureStorageProvider) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	blobName := objectKey(azp.prefix, dir, name)
	blobURL := azp.serviceURL.NewContainerURL(azp.containerName).NewBlockBlobURL(blobName)

	downloadResponse, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact '%s' not found", blobName), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download blob %s", blobName), err)
	}

	return downloadResponse.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// Delete removes a single artifact blob
func (azp *AzureStorageProvider) Delete(ctx context.Context, dir, name string) error {
	blobName := objectKey(azp.prefix, dir, name)
	blobURL := azp.serviceURL.NewContainerURL(azp.containerName).NewBlockBlobURL(blobName)

	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		if isAzureNotFound(err) {
			return NewNotFoundError(fmt.Sprintf("artifact '%s' not found", blobName), err)
		}
		return NewStorageError(fmt.Sprintf("failed to delete blob %s", blobName), err)
	}
	return nil
}

// Exists reports whether any blob lives below dir
func (azp *AzureStorageProvider) Exists(ctx context.Context, dir string) (bool, error) {
	containerURL := azp.serviceURL.NewContainerURL(azp.containerName)

	listResponse, err := containerURL.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     objectDirPrefix(azp.prefix, dir),
		MaxResults: 1,
	})
	if err != nil {
		return false, NewStorageError("failed to list Azure blobs", err)
	}
	return len(listResponse.Segment.BlobItems) > 0, nil
}

// Name identifies the store
func (azp *AzureStorageProvider) Name() string {
	return fmt.Sprintf("azure://%s/%s", azp.containerName, azp.prefix)
}

// HealthCheck verifies that the storage provider is accessible and functional
func (azp *AzureStorageProvider) HealthCheck(ctx context.Context) error {
	containerURL := azp.serviceURL.NewContainerURL(azp.containerName)

	_, err := containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return NewStorageError("Azure storage provider health check failed: container not accessible", err)
	}

	// Try to list blobs to verify permissions
	_, err = containerURL.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     azp.prefix,
		MaxResults: 1,
	})
	if err != nil {
		return NewStorageError("Azure storage provider health check failed: cannot list blobs", err)
	}

	return nil
}

func isAzureNotFound(err error) bool {
	var storageErr azblob.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Response() != nil && storageErr.Response().StatusCode == 404
	}
	return false
}
