/*
Package storage signs object-storage URLs for user profile images.

Profile images are stored under opaque keys in an S3-compatible bucket; partner
listings hand clients a short-lived GET URL instead of the key.
*/
package storage

import (
	"context"
	"time"
)

// DefaultDownloadTTL is how long a signed profile image URL stays valid.
const DefaultDownloadTTL = 15 * time.Minute

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// DownloadTTL overrides DefaultDownloadTTL.
	DownloadTTL time.Duration
}

// Enabled reports whether every S3 setting is present.
func (c ServiceConfig) Enabled() bool {
	return c.S3BucketName != "" && c.S3Endpoint != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// ImageSigner presigns download URLs for profile image keys.
type ImageSigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}

// NewImageSigner is the factory function for ImageSigner.
// Currently, only S3 compatible implementations are supported.
func NewImageSigner(ctx context.Context, cfg ServiceConfig) (ImageSigner, error) {
	if cfg.DownloadTTL <= 0 {
		cfg.DownloadTTL = DefaultDownloadTTL
	}
	return newS3Client(ctx, cfg)
}
