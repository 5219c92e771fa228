package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Minio stores objects in a MinIO or S3 bucket.
type Minio struct {
	client *minio.Client
	bucket string
	region string
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("blob: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("blob: bucket is required")
	}
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when missing.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("blob: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("blob: make bucket: %w", err)
	}
	return nil
}

func (m *Minio) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if key == "" {
		return Object{}, errors.New("blob: key is required")
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("blob: put %s: %w", key, classify(err))
	}
	stored := info.LastModified
	if stored.IsZero() {
		stored = time.Now()
	}
	return Object{Key: key, Size: info.Size, ContentType: contentType, StoredAt: stored.UTC()}, nil
}

func (m *Minio) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	stat, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, Object{}, classify(err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, classify(err)
	}
	return obj, Object{Key: key, Size: stat.Size, ContentType: stat.ContentType, StoredAt: stat.LastModified.UTC()}, nil
}

// Ping lists buckets as a health check.
func (m *Minio) Ping(ctx context.Context) error {
	_, err := m.client.ListBuckets(ctx)
	return err
}

func classify(err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket") {
		return errors.Join(ErrNotFound, err)
	}
	return err
}
