package s3upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("content type not allowed for media uploads")
	ErrInvalidFilename = errors.New("filename is required")
)

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// PresignedUpload is what a client needs to PUT a file and reference it later.
type PresignedUpload struct {
	UploadURL string      `json:"upload_url"`
	Method    string      `json:"method"`
	Headers   http.Header `json:"headers"`
	ObjectKey string      `json:"object_key"`
	PublicURL string      `json:"public_url"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Presigner issues direct upload URLs.
type Presigner interface {
	PresignUpload(ctx context.Context, workspaceID, filename, contentType string) (*PresignedUpload, error)
}

// Client wraps the S3 presign client with upload-specific functionality
type Client struct {
	presigner *s3.PresignClient
	config    *Config
	now       func() time.Time
}

// NewClient creates a new S3 upload client. Presigning is offline, so no
// request is sent to the bucket here.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (MinIO, B2) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[S3Upload] Initialized presign client for bucket: %s", cfg.BucketName)
	return &Client{
		presigner: s3.NewPresignClient(s3Client),
		config:    cfg,
		now:       time.Now,
	}, nil
}

// PresignUpload returns a PUT URL for a new object under the workspace prefix.
func (c *Client) PresignUpload(ctx context.Context, workspaceID, filename, contentType string) (*PresignedUpload, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, ErrInvalidFilename
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !AllowedContentType(contentType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !extensionPattern.MatchString(ext) {
		ext = ""
	}
	key := c.config.ObjectKey(workspaceID, uuid.NewString(), ext)

	ttl := c.config.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &PresignedUpload{
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   req.SignedHeader,
		ObjectKey: key,
		PublicURL: c.config.ObjectURL(key),
		ExpiresAt: c.now().Add(ttl),
	}, nil
}

// AllowedContentType accepts the media types the toolkit can read.
func AllowedContentType(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "video/"),
		strings.HasPrefix(contentType, "audio/"),
		strings.HasPrefix(contentType, "image/"):
		return true
	case contentType == "application/x-subrip", contentType == "text/vtt", contentType == "text/plain":
		return true
	default:
		return false
	}
}
