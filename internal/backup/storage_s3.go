package backup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3StorageProvider implements ArtifactStore for Amazon S3 and compatible services
type S3StorageProvider struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3StorageProvider creates a new S3StorageProvider instance
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("S3 storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		)
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3StorageProvider{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: normalizePrefix(config.Prefix),
	}, nil
}

// List returns the objects directly below dir
func (s3p *S3StorageProvider) List(ctx context.Context, dir string) ([]ArtifactInfo, error) {
	dirPrefix := objectDirPrefix(s3p.prefix, dir)

	var infos []ArtifactInfo
	err := s3p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s3p.bucket),
		Prefix:    aws.String(dirPrefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), dirPrefix)
			if name == "" {
				continue
			}
			infos = append(infos, ArtifactInfo{
				Name:    name,
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to list s3://%s/%s", s3p.bucket, dirPrefix), err)
	}

	if len(infos) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("directory 's3://%s/%s' does not exist", s3p.bucket, dirPrefix), nil)
	}

	return infos, nil
}

// Open downloads an artifact as a stream
func (s3p *S3StorageProvider) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	key := objectKey(s3p.prefix, dir, name)

	result, err := s3p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact 's3://%s/%s' not found", s3p.bucket, key), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download s3://%s/%s", s3p.bucket, key), err)
	}
	return result.Body, nil
}

// Delete removes a single artifact object
func (s3p *S3StorageProvider) Delete(ctx context.Context, dir, name string) error {
	key := objectKey(s3p.prefix, dir, name)

	// DeleteObject succeeds for missing keys, so check first
	_, err := s3p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return NewNotFoundError(fmt.Sprintf("artifact 's3://%s/%s' not found", s3p.bucket, key), err)
		}
		return NewNetworkError(fmt.Sprintf("failed to stat s3://%s/%s", s3p.bucket, key), err)
	}

	_, err = s3p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to delete s3://%s/%s", s3p.bucket, key), err)
	}
	return nil
}

// Exists reports whether any object lives below dir
func (s3p *S3StorageProvider) Exists(ctx context.Context, dir string) (bool, error) {
	result, err := s3p.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s3p.bucket),
		Prefix:  aws.String(objectDirPrefix(s3p.prefix, dir)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, NewStorageError("failed to list S3 objects", err)
	}
	return aws.Int64Value(result.KeyCount) > 0, nil
}

// Name identifies the store
func (s3p *S3StorageProvider) Name() string {
	return fmt.Sprintf("s3://%s/%s", s3p.bucket, s3p.prefix)
}

// HealthCheck verifies that the storage provider is accessible and functional
func (s3p *S3StorageProvider) HealthCheck(ctx context.Context) error {
	_, err := s3p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3p.bucket),
	})
	if err != nil {
		return NewStorageError("S3 storage provider health check failed: bucket not accessible", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
