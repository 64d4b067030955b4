package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage captures the single S3-compatible operation the sink needs.
type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

// MinioStorage implements ObjectStorage for S3-compatible services.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage builds a client from the sink.s3 settings.
func NewMinioStorage(cfg config.S3Config) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, utils.ConfigError("sink.s3.endpoint", "object storage endpoint must be provided")
	}
	if cfg.Bucket == "" {
		return nil, utils.ConfigError("sink.s3.bucket", "object storage bucket must be provided")
	}

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, utils.ConfigError("sink.s3.endpoint", fmt.Sprintf("invalid object storage endpoint: %v", err))
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioStorage) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("object storage upload failed: %w", err)
	}
	return nil
}

var _ ObjectStorage = (*MinioStorage)(nil)

// ObjectStore writes each committed batch as one JSONL object named
// <prefix>/<runID>/batch-<n>.jsonl.
type ObjectStore struct {
	mu      sync.Mutex
	storage ObjectStorage
	prefix  string
	runID   string
	n       int
}

func NewObjectStore(storage ObjectStorage, prefix, runID string) *ObjectStore {
	return &ObjectStore{storage: storage, prefix: strings.Trim(prefix, "/"), runID: runID}
}

func (s *ObjectStore) Commit(ctx context.Context, batch []listing.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return sinkError("object storage", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	key := path.Join(s.prefix, s.runID, fmt.Sprintf("batch-%05d.jsonl", s.n))
	if err := s.storage.UploadObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		s.n--
		return sinkError("object storage", err)
	}
	return nil
}
