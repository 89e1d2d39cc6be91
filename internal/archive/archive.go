// Package archive preserves raw source payloads in S3-compatible object
// storage so games can be reparsed without refetching. Objects are keyed
// {source}/{season}/{item_key}; the bucket is created on first use.
// Archiving is optional: an empty endpoint in config means no archive,
// and adapters run with a nil Archive.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rinkdata/rink/internal/config"
)

// Default timeouts for object storage operations.
const (
	DefaultMetadataTimeout = 10 * time.Second // stat, list, bucket checks
	DefaultDataTimeout     = 60 * time.Second // get, put
)

// Store is a raw-payload archive backed by MinIO / S3-compatible
// storage. Satisfies sources.Archive.
type Store struct {
	client          *minio.Client
	bucket          string
	metadataTimeout time.Duration
	dataTimeout     time.Duration
}

// New connects to the configured endpoint and ensures the bucket
// exists.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	// ResponseHeaderTimeout bounds the wait for the server to start
	// replying, not the full transfer.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: DefaultMetadataTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Store{
		client:          client,
		bucket:          cfg.Bucket,
		metadataTimeout: DefaultMetadataTimeout,
		dataTimeout:     DefaultDataTimeout,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ObjectKey is the archive layout: {source}/{season}/{item_key}. Sources
// without season-scoped items land under season 0.
func ObjectKey(source string, season int, itemKey string) string {
	return fmt.Sprintf("%s/%d/%s", source, season, itemKey)
}

// Put stores one raw payload, overwriting any previous fetch of the same
// item.
func (s *Store) Put(ctx context.Context, source string, season int, itemKey string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.dataTimeout)
	defer cancel()

	key := ObjectKey(source, season, itemKey)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: sniffContentType(data)})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get reads one archived payload. Returns nil, nil when the item was
// never archived.
func (s *Store) Get(ctx context.Context, source string, season int, itemKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dataTimeout)
	defer cancel()

	key := ObjectKey(source, season, itemKey)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// List returns the item keys archived for one source and season.
func (s *Store) List(ctx context.Context, source string, season int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	prefix := fmt.Sprintf("%s/%d/", source, season)
	keys := make([]string, 0)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key[len(prefix):])
	}
	return keys, nil
}

// HealthCheck verifies connectivity by checking the bucket exists.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("archive bucket check: %w", err)
	}
	if !exists {
		return fmt.Errorf("archive bucket %q does not exist", s.bucket)
	}
	return nil
}

// sniffContentType tags payloads for browsing the bucket by hand: the
// sources produce either JSON or HTML.
func sniffContentType(data []byte) string {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case len(trimmed) == 0:
		return "application/octet-stream"
	case trimmed[0] == '{' || trimmed[0] == '[':
		return "application/json"
	case trimmed[0] == '<':
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
