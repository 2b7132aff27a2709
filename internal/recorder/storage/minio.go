package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync/atomic"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOStore implements ObjectStore using MinIO
type MinIOStore struct {
	client     *minio.Client
	bucket     string
	logger     *zap.Logger
	config     MinIOConfig
	uploadPool chan struct{}

	metrics minioMetrics
}

// MinIOConfig contains MinIO configuration
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
	// Prefix is prepended to every object key.
	Prefix string

	MaxUploads     int
	ConnectTimeout time.Duration

	PartSize uint64 // 0 lets minio-go pick
}

// MinIOStats counts MinIO operations.
type MinIOStats struct {
	TotalUploads  uint64
	UploadBytes   uint64
	UploadErrors  uint64
	ActiveUploads int32
}

type minioMetrics struct {
	totalUploads  atomic.Uint64
	uploadBytes   atomic.Uint64
	uploadErrors  atomic.Uint64
	activeUploads atomic.Int32
}

// NewMinIOStore connects to MinIO and creates the bucket if needed.
func NewMinIOStore(ctx context.Context, config MinIOConfig) (*MinIOStore, error) {
	if config.MaxUploads <= 0 {
		config.MaxUploads = 4
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
		// one request per call; the Uploader owns retries
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &MinIOStore{
		client:     minioClient,
		bucket:     config.Bucket,
		logger:     zap.L().Named("minio-store"),
		config:     config,
		uploadPool: make(chan struct{}, config.MaxUploads),
	}
	for i := 0; i < config.MaxUploads; i++ {
		store.uploadPool <- struct{}{}
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		err = minioClient.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		store.logger.Info("Created MinIO bucket", zap.String("bucket", config.Bucket))
	}

	return store, nil
}

func (s *MinIOStore) objectKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return path.Join(s.config.Prefix, key)
}

// PutFile uploads a file in a single attempt. Failures come back as a
// StorageError whose Retryable flag is derived from the status code.
func (s *MinIOStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	options := resolvePutOptions(filePath, opts)
	objectKey := s.objectKey(key)

	file, err := os.Open(filePath)
	if err != nil {
		return &StorageError{Op: "put_file", Key: objectKey, Err: err}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return &StorageError{Op: "put_file", Key: objectKey, Err: err}
	}

	// Acquire upload slot
	select {
	case <-s.uploadPool:
		defer func() { s.uploadPool <- struct{}{} }()
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeUploads.Add(1)
	defer s.metrics.activeUploads.Add(-1)

	info, err := s.client.PutObject(ctx, s.bucket, objectKey, file, stat.Size(), minio.PutObjectOptions{
		ContentType:  options.ContentType,
		UserMetadata: options.Metadata,
		PartSize:     s.config.PartSize,
	})
	if err != nil {
		s.metrics.uploadErrors.Add(1)
		code := getMinioStatusCode(err)
		return &StorageError{
			Op:         "put",
			Key:        objectKey,
			Err:        err,
			StatusCode: code,
			Retryable:  ctx.Err() == nil && isRetryableStatus(code),
		}
	}

	s.metrics.totalUploads.Add(1)
	s.metrics.uploadBytes.Add(uint64(info.Size))

	s.logger.Debug("Object uploaded",
		zap.String("key", objectKey),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag))
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &StorageError{Op: "health_check", Err: err, StatusCode: getMinioStatusCode(err), Retryable: true}
	}
	if !exists {
		return &StorageError{Op: "health_check", Key: s.bucket, Err: fmt.Errorf("bucket does not exist"), StatusCode: 404}
	}
	return nil
}

// Stats returns the upload counters.
func (s *MinIOStore) Stats() MinIOStats {
	return MinIOStats{
		TotalUploads:  s.metrics.totalUploads.Load(),
		UploadBytes:   s.metrics.uploadBytes.Load(),
		UploadErrors:  s.metrics.uploadErrors.Load(),
		ActiveUploads: s.metrics.activeUploads.Load(),
	}
}

// getMinioStatusCode extracts HTTP status code from MinIO error
func getMinioStatusCode(err error) int {
	errResp := minio.ToErrorResponse(err)
	if errResp.StatusCode != 0 {
		return errResp.StatusCode
	}
	if errResp.Code != "" {
		switch errResp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return 404
		case "AccessDenied":
			return 403
		case "InvalidArgument":
			return 400
		default:
			return 500
		}
	}
	return 500
}
