package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"cloud.google.com/go/storage"
)

// ColdStorageExporter persists sealed Merkle checkpoints to durable
// object storage for long-term retention, independent of the primary
// Store. Optional: deployments that don't configure a backend simply
// never call Export.
type ColdStorageExporter interface {
	Export(ctx context.Context, cp Checkpoint) error
}

// checkpointKey names the export object for one org's window, keyed by
// root hash so repeated exports of the same window are idempotent.
func checkpointKey(prefix string, cp Checkpoint) string {
	root := cp.Root
	if len(root) > 7 && root[:7] == "sha256:" {
		root = root[7:]
	}
	return fmt.Sprintf("%s%s/%s.json", prefix, cp.OrgID, root)
}

// S3ColdStorage exports sealed checkpoints to S3, grounded on the
// teacher's pkg/artifacts/s3_store.go content-addressed PutObject flow.
type S3ColdStorage struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3ColdStorageConfig configures S3ColdStorage.
type S3ColdStorageConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3ColdStorage constructs an S3-backed checkpoint exporter.
func NewS3ColdStorage(ctx context.Context, cfg S3ColdStorageConfig) (*S3ColdStorage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ingestion: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3ColdStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3ColdStorage) Export(ctx context.Context, cp Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("ingestion: marshal checkpoint: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(checkpointKey(s.prefix, cp)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("ingestion: s3 checkpoint export: %w", err)
	}
	return nil
}

// GCSColdStorage exports sealed checkpoints to Google Cloud Storage,
// grounded on the teacher's pkg/artifacts/gcs_store.go object-writer flow.
type GCSColdStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSColdStorageConfig configures GCSColdStorage.
type GCSColdStorageConfig struct {
	Bucket string
	Prefix string
}

// NewGCSColdStorage constructs a GCS-backed checkpoint exporter (uses
// Application Default Credentials).
func NewGCSColdStorage(ctx context.Context, cfg GCSColdStorageConfig) (*GCSColdStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: create gcs client: %w", err)
	}
	return &GCSColdStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSColdStorage) Export(ctx context.Context, cp Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("ingestion: marshal checkpoint: %w", err)
	}
	obj := s.client.Bucket(s.bucket).Object(checkpointKey(s.prefix, cp))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("ingestion: gcs checkpoint write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ingestion: gcs checkpoint close: %w", err)
	}
	return nil
}

func (s *GCSColdStorage) Close() error {
	return s.client.Close()
}
