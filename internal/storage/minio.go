package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOpts customizes the object store configuration.
type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint      string
	bucket        string
	accessKey     string
	secretKey     string
	useSSL        bool
	publicBaseURL string
	mediaBaseURL  string
}

// ObjectStore is the MinIO-backed Store implementation. Public URLs are
// issued off a configured base (the bucket's public endpoint or a CDN in
// front of it); still frames are served by the media endpoint's on-the-fly
// transform.
type ObjectStore struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewObjectStore initializes the MinIO client and the URL issuers.
func NewObjectStore(opts ...MinioOpts) (*ObjectStore, error) {
	cfg := &minioConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("storage: endpoint is required")
	}
	if cfg.bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	if cfg.publicBaseURL == "" {
		return nil, fmt.Errorf("storage: public base url is required")
	}
	if cfg.mediaBaseURL == "" {
		cfg.mediaBaseURL = cfg.publicBaseURL
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init client: %w", err)
	}

	return &ObjectStore{cfg: cfg, client: client}, nil
}

// Upload persists the local file under the sanitized key.
func (s *ObjectStore) Upload(ctx context.Context, localPath, key, contentType string) (*UploadResult, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	info, err := s.client.FPutObject(ctx, s.cfg.bucket, cleanKey, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: upload %s: %w", cleanKey, err)
	}
	return &UploadResult{
		Key:   cleanKey,
		URL:   joinURL(s.cfg.publicBaseURL, cleanKey),
		Bytes: info.Size,
	}, nil
}

// Remove deletes the object behind an issued URL. Foreign URLs are a no-op so
// the delete path stays idempotent and best-effort.
func (s *ObjectStore) Remove(ctx context.Context, objectURL string) error {
	key, ok := keyFromURL(s.cfg.publicBaseURL, objectURL)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.cfg.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

// StillFrameURL returns the transform URL for a single frame of the stored video.
func (s *ObjectStore) StillFrameURL(key string, offsetSeconds int) string {
	return stillFrameURL(s.cfg.mediaBaseURL, key, offsetSeconds)
}

// WithEndpoint sets the S3-compatible endpoint host.
func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) { c.endpoint = endpoint }
}

// WithBucket sets the target bucket.
func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) { c.bucket = bucket }
}

// WithAccessKey sets the access key credential.
func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) { c.accessKey = accessKey }
}

// WithSecretKey sets the secret key credential.
func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) { c.secretKey = secretKey }
}

// WithSSL toggles TLS towards the endpoint.
func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) { c.useSSL = useSSL }
}

// WithPublicBaseURL sets the base under which stored objects are reachable.
func WithPublicBaseURL(base string) MinioOpts {
	return func(c *minioConfig) { c.publicBaseURL = base }
}

// WithMediaBaseURL sets the transform endpoint used for still frames.
func WithMediaBaseURL(base string) MinioOpts {
	return func(c *minioConfig) { c.mediaBaseURL = base }
}

var _ Store = (*ObjectStore)(nil)
