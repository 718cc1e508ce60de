package s3upload

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		BucketName:      "media",
		EndpointURL:     "http://localhost:9000",
		PresignTTL:      10 * time.Minute,
	}
}

func TestPresignUpload(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	up, err := client.PresignUpload(context.Background(), "ws-1", "Intro Clip.MP4", "video/mp4")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.ObjectKey, "uploads/ws-1/"))
	assert.True(t, strings.HasSuffix(up.ObjectKey, ".mp4"))
	assert.Equal(t, "PUT", up.Method)
	assert.Equal(t, "http://localhost:9000/media/"+up.ObjectKey, up.PublicURL)
	assert.Equal(t, fixed.Add(10*time.Minute), up.ExpiresAt)

	u, err := url.Parse(up.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/media/"+up.ObjectKey, u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

func TestPresignUpload_Rejects(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)

	tests := []struct {
		name        string
		filename    string
		contentType string
		want        error
	}{
		{"empty filename", "  ", "video/mp4", ErrInvalidFilename},
		{"executable", "run.sh", "application/x-sh", ErrUnsupportedType},
		{"no type", "a.mp4", "", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.PresignUpload(context.Background(), "ws-1", tt.filename, tt.contentType)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPresignUpload_DropsOddExtensions(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)

	up, err := client.PresignUpload(context.Background(), "ws-1", "voice.over?.m4a%00", "audio/mp4")
	require.NoError(t, err)
	assert.Len(t, strings.TrimPrefix(up.ObjectKey, "uploads/ws-1/"), 36)
}

func TestConfig(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "uploads/ws/abc.png", cfg.ObjectKey("ws", "abc", ".PNG"))

	cfg.PublicURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/k", cfg.ObjectURL("k"))

	cfg.PublicURL, cfg.EndpointURL = "", ""
	assert.Equal(t, "https://media.s3.us-east-1.amazonaws.com/k", cfg.ObjectURL("k"))

	assert.Error(t, (&Config{AccessKeyID: "a", SecretAccessKey: "b"}).Validate())
	_, err := NewClient(&Config{})
	assert.Error(t, err)
}
