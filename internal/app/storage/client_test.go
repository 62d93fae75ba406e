package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceConfigEnabled(t *testing.T) {
	assert.False(t, ServiceConfig{}.Enabled())
	assert.False(t, ServiceConfig{S3BucketName: "b", S3Endpoint: "http://localhost:9000"}.Enabled())
	assert.True(t, ServiceConfig{
		S3BucketName:      "b",
		S3Endpoint:        "http://localhost:9000",
		S3AccessKeyID:     "id",
		S3SecretAccessKey: "secret",
	}.Enabled())
}

func TestPresignDownloadIsOffline(t *testing.T) {
	signer, err := NewImageSigner(context.Background(), ServiceConfig{
		S3BucketName:      "avatars",
		S3Endpoint:        "http://localhost:9000",
		S3AccessKeyID:     "AKIDEXAMPLE",
		S3SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	})
	require.NoError(t, err)

	url, err := signer.PresignDownload(context.Background(), "users/u1.png")
	require.NoError(t, err)

	assert.Contains(t, url, "http://localhost:9000/avatars/users/u1.png")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=900")
}
