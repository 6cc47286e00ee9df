package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/speakerid-team/speaker-id/pkg/config"
)

// MinIOClient wraps MinIO operations
type MinIOClient struct {
	client    *minio.Client
	bucket    string
	publicURL string // Public URL when MinIO sits behind a reverse proxy
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg *config.StorageConfig) (*MinIOClient, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	client := &MinIOClient{
		client:    minioClient,
		bucket:    cfg.BucketName,
		publicURL: cfg.PublicURL,
	}

	ctx := context.Background()
	if err := client.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return client, nil
}

// ensureBucket ensures the bucket exists
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// UploadFile uploads a file to MinIO
func (m *MinIOClient) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// UploadPath uploads a local file to MinIO
func (m *MinIOClient) UploadPath(ctx context.Context, objectName, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	if err := m.UploadFile(ctx, objectName, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	return nil
}

// Download copies an object into a local file
func (m *MinIOClient) Download(ctx context.Context, objectName, destPath string) error {
	obj, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", objectName, err)
	}
	defer obj.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, obj); err != nil {
		return fmt.Errorf("failed to download %s: %w", objectName, err)
	}

	return nil
}

// Exists reports whether an object is present. This is a real HEAD-style
// check, not a presigned-URL probe; an object can be addressable without
// existing.
func (m *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s: %w", objectName, err)
	}
	return true, nil
}

// GetFileURL gets a presigned URL for accessing a file
func (m *MinIOClient) GetFileURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	// When MinIO is behind a reverse proxy (e.g., Nginx) rewrite the
	// internal endpoint to the public one, keeping path and signature.
	if m.publicURL != "" {
		urlStr := url.String()
		bucketPos := len(url.Scheme) + 3 + len(url.Host) // "https://" + host
		if bucketPos < len(urlStr) {
			pathAndQuery := urlStr[bucketPos:] // /bucket/object?query
			return m.publicURL + pathAndQuery, nil
		}
	}

	return url.String(), nil
}

// ListKeys lists object keys under a prefix
func (m *MinIOClient) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
	}

	return keys, nil
}

// RemoveKeys bulk-deletes objects and returns deleted/failed counts.
// Individual delete failures are counted, not fatal.
func (m *MinIOClient) RemoveKeys(ctx context.Context, keys []string) (deleted int, failed int, err error) {
	if len(keys) == 0 {
		return 0, 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	failedKeys := map[string]bool{}
	for removeErr := range m.client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			failedKeys[removeErr.ObjectName] = true
		}
	}

	failed = len(failedKeys)
	deleted = len(keys) - failed
	return deleted, failed, nil
}
