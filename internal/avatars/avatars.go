package avatars

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/signon/signon/internal/config"
)

// Service mirrors provider profile images into a MinIO bucket so the app can
// serve avatars without hotlinking the provider CDN. Mirroring is best-effort
// and never affects the sign-in outcome.
type Service struct {
	client *minio.Client
	bucket string
}

// New creates the MinIO-backed avatar service and ensures the bucket exists.
func New(cfg config.MinIOConfig) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &Service{client: mc, bucket: cfg.Bucket}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func objectKey(userID string) string {
	return "avatars/" + userID
}

// Mirror downloads the provider avatar and stores it under the user's key.
func (s *Service) Mirror(ctx context.Context, userID, avatarURL string) error {
	if avatarURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("avatar fetch returned %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(userID), resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// ProfileURL returns a presigned GET URL for the mirrored avatar.
func (s *Service) ProfileURL(ctx context.Context, userID string, expires time.Duration) (string, error) {
	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(userID), expires, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
