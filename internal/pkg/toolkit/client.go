package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

const (
	defaultAPIURL     = "http://localhost:8080"
	maxErrorBodyBytes = 8 * 1024
	jobStatusPath     = "/v1/toolkit/job/status"
)

var ErrNotConfigured = errors.New("NCA_API_URL/NCA_API_KEY are not configured")

// UpstreamError is returned when the toolkit answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("toolkit returned status=%d body=%s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors. Client errors are permanent.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// SubmitResponse is the toolkit's acknowledgement of an async request.
type SubmitResponse struct {
	Code        int             `json:"code"`
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	Message     string          `json:"message"`
	MaxQueue    int             `json:"max_queue_length,omitempty"`
	QueueLength int             `json:"queue_length,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// JobStatus is the toolkit's view of a job.
type JobStatus struct {
	JobID     string          `json:"job_id"`
	JobStatus string          `json:"job_status"`
	Response  json.RawMessage `json:"response"`
	Raw       json.RawMessage `json:"-"`
}

// Upstream job states reported by the status endpoint.
const (
	UpstreamStatusQueued   = "queued"
	UpstreamStatusRunning  = "running"
	UpstreamStatusDone     = "done"
	UpstreamStatusFailed   = "failed"
	UpstreamStatusNotFound = "not_found"
)

// Submitter posts a job payload to a toolkit path.
type Submitter interface {
	Submit(ctx context.Context, path string, payload map[string]interface{}) (*SubmitResponse, error)
}

// StatusChecker asks the toolkit for the state of a job.
type StatusChecker interface {
	JobStatus(ctx context.Context, externalJobID string) (*JobStatus, error)
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("NCA_API_URL", defaultAPIURL)), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("NCA_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Submit(ctx context.Context, path string, payload map[string]interface{}) (*SubmitResponse, error) {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	var out SubmitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode toolkit response: %w", err)
	}
	out.Raw = body
	if strings.TrimSpace(out.JobID) == "" {
		return nil, errors.New("toolkit response carried no job_id")
	}
	return &out, nil
}

func (c *Client) JobStatus(ctx context.Context, externalJobID string) (*JobStatus, error) {
	if strings.TrimSpace(externalJobID) == "" {
		return nil, errors.New("external job id is required")
	}
	body, err := c.post(ctx, jobStatusPath, map[string]interface{}{"job_id": externalJobID})
	if err != nil {
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
			return &JobStatus{JobID: externalJobID, JobStatus: UpstreamStatusNotFound}, nil
		}
		return nil, err
	}
	var out JobStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode toolkit job status: %w", err)
	}
	// The status endpoint wraps its payload in "response".
	if out.JobStatus == "" && len(out.Response) > 0 {
		var inner JobStatus
		if err := json.Unmarshal(out.Response, &inner); err == nil && inner.JobStatus != "" {
			inner.Raw = body
			return &inner, nil
		}
	}
	out.Raw = body
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal toolkit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request toolkit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
