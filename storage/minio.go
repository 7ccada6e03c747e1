package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"artistsfirst/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the bucket exists.
func InitMinio(cfg *config.Config) error {
	log.Printf("Connecting to MinIO at %s (bucket %s)...", cfg.MinioEndpoint, cfg.MinioBucket)

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Created bucket: %s", cfg.MinioBucket)
	}

	minioClient = client
	log.Println("MinIO client initialized.")
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// UploadObject stores a cover or audio file under the given folder with a
// uuid-based object name and returns the object path to record on the
// track.
func UploadObject(ctx context.Context, cfg *config.Config, folder, ext, contentType string, r io.Reader, size int64) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}
	objectPath := path.Join(folder, uuid.New().String()+ext)
	_, err := minioClient.PutObject(ctx, cfg.MinioBucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// RemoveObject deletes an object; missing objects are not an error.
func RemoveObject(ctx context.Context, cfg *config.Config, objectPath string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	if objectPath == "" {
		return nil
	}
	if err := minioClient.RemoveObject(ctx, cfg.MinioBucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", objectPath, err)
	}
	return nil
}
