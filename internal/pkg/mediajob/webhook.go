package mediajob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

// WebhookPayload is the completion notice posted by the toolkit.
type WebhookPayload struct {
	Endpoint    string          `json:"endpoint"`
	Code        int             `json:"code"`
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	Response    json.RawMessage `json:"response"`
	Message     string          `json:"message"`
	PID         int             `json:"pid"`
	QueueID     int64           `json:"queue_id"`
	RunTime     float64         `json:"run_time"`
	QueueTime   float64         `json:"queue_time"`
	TotalTime   float64         `json:"total_time"`
	BuildNumber json.RawMessage `json:"build_number"`
}

// WebhookResult reports what a delivery did.
type WebhookResult struct {
	JobID        string
	LocalJobID   string
	Matched      bool
	Transitioned bool
	Status       string
	ProcessedAt  time.Time
}

// Notifier is told about jobs that just reached a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job *models.Job) error
}

// WebhookProcessor correlates toolkit callbacks with local jobs.
type WebhookProcessor struct {
	jobs     repository.JobRepository
	secret   string
	notifier Notifier
}

func NewWebhookProcessor(jobs repository.JobRepository, secret string, notifier Notifier) *WebhookProcessor {
	return &WebhookProcessor{jobs: jobs, secret: strings.TrimSpace(secret), notifier: notifier}
}

// NewWebhookProcessorFromDB reads MEDIA_WEBHOOK_SECRET from the environment.
func NewWebhookProcessorFromDB(db *gorm.DB, notifier Notifier) *WebhookProcessor {
	return NewWebhookProcessor(repository.NewJobRepository(db), env.GetEnv("MEDIA_WEBHOOK_SECRET", ""), notifier)
}

// Handle verifies and applies one delivery. Unknown jobs are acknowledged
// without any change; repeated deliveries only bump the delivery counter.
func (p *WebhookProcessor) Handle(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if p.secret != "" && !VerifySignature(body, signature, p.secret) {
		return nil, ErrInvalidSignature
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrMalformedPayload
	}
	payload.JobID = strings.TrimSpace(payload.JobID)
	payload.ID = strings.TrimSpace(payload.ID)
	if payload.JobID == "" && payload.ID == "" {
		return nil, ErrMissingJobID
	}

	result := &WebhookResult{JobID: payload.JobID, ProcessedAt: time.Now().UTC()}
	if result.JobID == "" {
		result.JobID = payload.ID
	}

	job, err := p.lookup(payload)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] ignoring delivery for unknown job job_id=%s id=%s", payload.JobID, payload.ID)
			return result, nil
		}
		return nil, err
	}
	result.Matched = true
	result.LocalJobID = job.ID

	if err := p.jobs.RecordWebhookDelivery(job.ID); err != nil {
		log.Warnf("[Webhook] failed to count delivery for job %s: %v", job.ID, err)
	}

	status := models.JobStatusFailed
	if payload.Code >= 200 && payload.Code < 300 {
		status = models.JobStatusCompleted
	}
	update := repository.JobTerminalUpdate{
		Status:     status,
		StatusCode: payload.Code,
		Message:    payload.Message,
		Response:   datatypes.JSON(payload.Response),
		RunTime:    payload.RunTime,
		QueueTime:  payload.QueueTime,
		TotalTime:  payload.TotalTime,
	}
	if status == models.JobStatusFailed {
		update.LastError = payload.Message
	}

	moved, err := finishJob(ctx, p.jobs, p.notifier, job.ID, update)
	if err != nil {
		return nil, err
	}
	result.Transitioned = moved
	result.Status = status
	if !moved {
		log.Infof("[Webhook] duplicate or late delivery for job %s (status %s kept)", job.ID, job.ProcessingStatus)
		result.Status = job.ProcessingStatus
	}
	return result, nil
}

func (p *WebhookProcessor) lookup(payload WebhookPayload) (*models.Job, error) {
	if payload.JobID != "" {
		job, err := p.jobs.GetByExternalID(payload.JobID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if payload.ID != "" {
		return p.jobs.GetByID(payload.ID)
	}
	return nil, gorm.ErrRecordNotFound
}

// VerifySignature checks a hex encoded HMAC-SHA256 of payload.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimPrefix(strings.TrimSpace(signatureHeader), "sha256=")
	if sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// Sign returns the signature VerifySignature expects.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
