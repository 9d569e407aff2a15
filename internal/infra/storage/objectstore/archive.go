// Package objectstore archives raw tool output in an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/internal/infra/storage"
)

// Config describes the bucket reports are written to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive implements scanning.ReportArchive on top of minio.
type Archive struct {
	mc     *minio.Client
	bucket string
	tracer trace.Tracer
}

var _ scanning.ReportArchive = (*Archive)(nil)

// NewArchive creates an Archive for cfg. The bucket is not touched until
// EnsureBucket or Store is called.
func NewArchive(cfg Config, tracer trace.Tracer) (*Archive, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &Archive{mc: mc, bucket: cfg.Bucket, tracer: tracer}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	attrs := []attribute.KeyValue{attribute.String("bucket", a.bucket)}
	return storage.ExecuteAndTrace(ctx, a.tracer, "objectstore.ensure_bucket", attrs, func(ctx context.Context) error {
		exists, err := a.mc.BucketExists(ctx, a.bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
		}
		if exists {
			return nil
		}
		if err := a.mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
		return nil
	})
}

// Store writes report under key.
func (a *Archive) Store(ctx context.Context, key string, report string) error {
	attrs := []attribute.KeyValue{
		attribute.String("bucket", a.bucket),
		attribute.String("key", key),
		attribute.Int("size", len(report)),
	}
	return storage.ExecuteAndTrace(ctx, a.tracer, "objectstore.store", attrs, func(ctx context.Context) error {
		_, err := a.mc.PutObject(ctx, a.bucket, key, strings.NewReader(report), int64(len(report)),
			minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

// Fetch reads the report stored under key.
func (a *Archive) Fetch(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("bucket", a.bucket),
		attribute.String("key", key),
	}

	var report string
	err := storage.ExecuteAndTrace(ctx, a.tracer, "objectstore.fetch", attrs, func(ctx context.Context) error {
		obj, err := a.mc.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", key, err)
		}
		defer obj.Close()

		data, err := io.ReadAll(obj)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		report = string(data)
		return nil
	})
	return report, err
}
