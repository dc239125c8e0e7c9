package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carbonlock/marketplace-portal/pkg/storage"
)

// ExportStore uploads rendered exports and hands out presigned links.
type ExportStore struct {
	client storage.S3Client
	bucket string
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// PublishedExport is an uploaded export file.
type PublishedExport struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewExportStore creates a store writing into bucket under prefix.
func NewExportStore(client storage.S3Client, bucket, prefix string, ttl time.Duration, logger *zap.Logger) *ExportStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ExportStore{client: client, bucket: bucket, prefix: prefix, ttl: ttl, logger: logger}
}

// Publish uploads data as name and returns a presigned download link.
func (s *ExportStore) Publish(ctx context.Context, name, contentType string, data []byte, now time.Time) (PublishedExport, error) {
	key := s.prefix + name
	if err := s.client.Upload(ctx, s.bucket, key, bytes.NewReader(data), contentType); err != nil {
		return PublishedExport{}, err
	}
	url, err := s.client.GetPresignedURL(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return PublishedExport{}, fmt.Errorf("failed to sign export link: %w", err)
	}
	s.logger.Info("Export uploaded", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return PublishedExport{Key: key, URL: url, ExpiresAt: now.Add(s.ttl).UTC()}, nil
}
