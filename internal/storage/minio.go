package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/binito/despesify/internal/models"
)

// Storage keeps the uploaded invoice scans
type Storage struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and verifies the bucket exists
func New(ctx context.Context, cfg models.StorageConfig) (*Storage, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" {
		return nil, fmt.Errorf("no storage configuration")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

// Ping checks the bucket is still reachable
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// UploadScan stores a scan under {user}/YYYY/MM/{uuid}{ext} and returns
// the bucket-qualified path kept in the database.
func (s *Storage) UploadScan(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(userID, time.Now(), uuid.New(), contentType)

	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return s.bucket + "/" + objectName, nil
}

// PresignedURL generates a 24h link for viewing a stored scan
func (s *Storage) PresignedURL(ctx context.Context, objectPath string) (string, error) {
	objectName := strings.TrimPrefix(objectPath, s.bucket+"/")

	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// ObjectName lays scans out per user and month
func ObjectName(userID string, now time.Time, id uuid.UUID, contentType string) string {
	return fmt.Sprintf("%s/%d/%02d/%s%s",
		userID,
		now.Year(),
		now.Month(),
		id,
		GetFileExtension(contentType),
	)
}

// GetFileExtension extracts file extension from content type
func GetFileExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".bin"
	}
}
