package s3upload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

// Config holds the upload bucket configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicURL       string // Optional base for GET links, e.g. a CDN
	PresignTTL      time.Duration
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicURL:       env.GetEnv("S3_PUBLIC_URL", ""),
		PresignTTL:      env.GetEnvMinutes("S3_PRESIGN_TTL_MINUTES", 15),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.AccessKeyID == "" {
		return errors.New("S3_ACCESS_KEY_ID is required for uploads")
	}
	if c.SecretAccessKey == "" {
		return errors.New("S3_SECRET_ACCESS_KEY is required for uploads")
	}
	if c.BucketName == "" {
		return errors.New("S3_BUCKET_NAME is required for uploads")
	}
	return nil
}

// ObjectKey generates the object key for an upload
func (c *Config) ObjectKey(workspaceID, id, fileExtension string) string {
	// Format: uploads/<workspace>/<uuid><ext>
	return fmt.Sprintf("uploads/%s/%s%s", workspaceID, id, strings.ToLower(fileExtension))
}

// ObjectURL returns the public GET address of key.
func (c *Config) ObjectURL(key string) string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/") + "/" + key
	}
	if c.EndpointURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.EndpointURL, "/"), c.BucketName, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
}
