package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO fetches documents from an S3-compatible bucket. References are object keys.
// It is safe for concurrent use by multiple goroutines.
type MinIO struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinIO validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger *slog.Logger) (*MinIO, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		logger.Info("source.minio.bucket_created", "bucket", cfg.Bucket)
	}

	return &MinIO{client: cli, bucket: cfg.Bucket, logger: logger}, nil
}

var _ DocumentSource = (*MinIO)(nil)

func (m *MinIO) Fetch(ctx context.Context, key string) (entity.RawDocument, error) {
	if key == "" {
		return entity.RawDocument{}, ErrEmptyRef
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return entity.RawDocument{}, m.mapErr(key, err)
	}
	defer obj.Close()

	st, err := obj.Stat()
	if err != nil {
		return entity.RawDocument{}, m.mapErr(key, err)
	}
	if st.Size > MaxDocumentBytes {
		return entity.RawDocument{}, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, key, st.Size)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return entity.RawDocument{}, m.mapErr(key, err)
	}

	ct := st.ContentType
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		ct = DetectContentType(key, data)
	}
	m.logger.Debug("source.minio.fetched", "bucket", m.bucket, "key", key, "bytes", len(data), "content_type", ct)
	return entity.RawDocument{Ref: key, ContentType: ct, Data: data}, nil
}

func (m *MinIO) mapErr(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("fetch %s/%s: %w", m.bucket, key, err)
}
