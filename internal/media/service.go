package media

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = 24 * time.Hour

// Service resolves featured images for insights. Uploaded images live in an
// object store and are served through presigned URLs; insights without an
// uploaded image get a deterministic placeholder derived from their slug.
type Service struct {
	client          *minio.Client
	bucket          string
	placeholderBase string
}

// Config holds object storage settings. Endpoint may be empty, in which case
// every insight resolves to a placeholder image.
type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UseSSL          bool
	PlaceholderBase string
}

// New creates a media service. A blank endpoint disables object storage
// without failing startup.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		bucket:          cfg.Bucket,
		placeholderBase: strings.TrimRight(cfg.PlaceholderBase, "/"),
	}
	if cfg.Endpoint == "" {
		return svc, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	svc.client = client
	return svc, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Called once at
// startup; a failure here is logged by the caller, not fatal.
func (s *Service) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ImageURL resolves the featured image for an insight. objectKey is the
// stored image key and may be empty. The slug seeds the placeholder so the
// same insight always gets the same stand-in image.
func (s *Service) ImageURL(ctx context.Context, objectKey, slug string) string {
	if s.client != nil && objectKey != "" {
		if _, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{}); err == nil {
			presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, presignExpiry, url.Values{})
			if err == nil {
				return presigned.String()
			}
			log.Printf("media: presign %s: %v", objectKey, err)
		}
	}
	return s.Placeholder(slug)
}

// Placeholder returns the deterministic stand-in image URL for a slug.
func (s *Service) Placeholder(slug string) string {
	if slug == "" {
		slug = "insight"
	}
	return fmt.Sprintf("%s/%s/1200/630", s.placeholderBase, url.PathEscape(slug))
}
