package mediajob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/entitlements"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/toolkit"
	"github.com/ManuelReschke/MediaDash/internal/pkg/usercontext"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	maxIdempotencyKeyLen = 128
	webhookPath          = "/webhooks/media"

	submissionFailedMessage      = "submission failed"
	submissionUnconfirmedMessage = "submission not confirmed"
)

// Service submits media jobs to the toolkit and tracks them locally.
type Service struct {
	jobs          repository.JobRepository
	upstream      toolkit.Submitter
	webhookURL    string
	submitTimeout time.Duration
}

// NewService creates a media job service from its collaborators.
func NewService(jobs repository.JobRepository, upstream toolkit.Submitter, webhookURL string) *Service {
	return &Service{
		jobs:          jobs,
		upstream:      upstream,
		webhookURL:    webhookURL,
		submitTimeout: defaultSubmitTimeout,
	}
}

// NewServiceFromDB wires the service with the env configured toolkit client.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewJobRepository(db), toolkit.NewClientFromEnv(), WebhookURLFromEnv())
}

// WebhookURLFromEnv returns MEDIA_WEBHOOK_URL or the public webhook route.
func WebhookURLFromEnv() string {
	if u := strings.TrimSpace(env.GetEnv("MEDIA_WEBHOOK_URL", "")); u != "" {
		return u
	}
	return env.PublicURL(webhookPath)
}

// SubmitInput is one media request as received from a caller.
type SubmitInput struct {
	Operation      Operation
	Caller         usercontext.UserContext
	Body           []byte
	IdempotencyKey string
}

// SubmitResult describes the tracked job. Replayed is true when an earlier
// submission with the same idempotency key was returned instead. Resubmitted
// is true when a previously rejected submission was sent again.
type SubmitResult struct {
	Job         *models.Job
	Replayed    bool
	Resubmitted bool
}

// DecodeAndValidate parses body into the operation's request type and checks
// it against the field constraints.
func DecodeAndValidate(op Operation, body []byte) (Request, error) {
	req := op.NewRequest()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &ValidationError{Problems: []string{"request body is required"}}
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, &ValidationError{Problems: []string{"request body must be valid JSON: " + err.Error()}}
	}
	if err := validate.Struct(req); err != nil {
		return nil, describeValidation(err)
	}
	return req, nil
}

// Submit validates the request, records a submitting job, forwards it to the
// toolkit and marks it processing. Nothing is written or sent for invalid
// requests.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	req, err := DecodeAndValidate(in.Operation, in.Body)
	if err != nil {
		return nil, err
	}

	workspaceID := in.Caller.WorkspaceID
	key := resolveIdempotencyKey(in.IdempotencyKey, req.ClientID())
	if len(key) > maxIdempotencyKeyLen {
		return nil, &ValidationError{Problems: []string{"Idempotency-Key must be at most 128 characters"}}
	}

	existing, err := s.jobs.GetByIdempotencyKey(workspaceID, key)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if existing != nil && !canResubmit(existing) {
		return &SubmitResult{Job: existing, Replayed: true}, nil
	}

	if !entitlements.OperationAllowed(in.Caller.Plan, in.Operation.Name) {
		return nil, ErrOperationDenied
	}
	active, err := s.jobs.CountActiveByWorkspace(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("count active jobs: %w", err)
	}
	if active >= int64(entitlements.MaxActiveJobs(in.Caller.Plan)) {
		return nil, ErrPlanLimit
	}

	if existing != nil {
		reopened, err := s.jobs.ReopenSubmission(existing.ID, submissionFailedMessage)
		if err != nil {
			return nil, fmt.Errorf("reopen job: %w", err)
		}
		current, err := s.jobs.GetByID(existing.ID)
		if err != nil {
			return nil, fmt.Errorf("reload job: %w", err)
		}
		if !reopened {
			return &SubmitResult{Job: current, Replayed: true}, nil
		}
		log.Infof("[MediaJob] resubmitting job %s after a rejected submission", current.ID)
		res, err := s.forward(ctx, in.Operation, current)
		if res != nil {
			res.Resubmitted = true
		}
		return res, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	job := &models.Job{
		ID:             uuid.New().String(),
		UserID:         in.Caller.UserID,
		WorkspaceID:    workspaceID,
		IdempotencyKey: key,
		Operation:      in.Operation.Name,
		CustomID:       req.ClientID(),
		RequestPayload: datatypes.JSON(payload),
	}
	created, stored, err := s.jobs.CreateSubmitting(job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if !created {
		return &SubmitResult{Job: stored, Replayed: true}, nil
	}
	return s.forward(ctx, in.Operation, stored)
}

// forward sends a submitting job to the toolkit and records the outcome.
func (s *Service) forward(ctx context.Context, op Operation, stored *models.Job) (*SubmitResult, error) {
	upstreamPayload, err := s.upstreamPayload(stored.RequestPayload, stored.ID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	resp, err := s.upstream.Submit(callCtx, op.UpstreamPath, upstreamPayload)
	if err != nil {
		log.Errorf("[MediaJob] %s submit failed for job %s: %v", op.Name, stored.ID, err)
		if _, markErr := s.jobs.MarkTerminal(stored.ID, repository.JobTerminalUpdate{
			Status:     models.JobStatusError,
			StatusCode: upstreamStatus(err),
			Message:    submissionFailedMessage,
			LastError:  err.Error(),
		}); markErr != nil {
			log.Errorf("[MediaJob] failed to mark job %s as error: %v", stored.ID, markErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	moved, err := s.jobs.MarkProcessing(stored.ID, resp.JobID, resp.Message, datatypes.JSON(resp.Raw))
	if err != nil {
		log.Errorf("[MediaJob] job %s accepted upstream as %s but tracking update failed: %v", stored.ID, resp.JobID, err)
		return nil, &TrackingError{JobID: stored.ID, ExternalJobID: resp.JobID, Err: err}
	}
	if !moved {
		log.Infof("[MediaJob] job %s already advanced before processing was recorded", stored.ID)
	}

	current, err := s.jobs.GetByID(stored.ID)
	if err != nil {
		return nil, &TrackingError{JobID: stored.ID, ExternalJobID: resp.JobID, Err: err}
	}
	log.Infof("[MediaJob] %s job %s submitted (upstream %s)", op.Name, current.ID, resp.JobID)
	return &SubmitResult{Job: current}, nil
}

// canResubmit reports whether job was rejected by the toolkit before it was
// accepted. Jobs the reconciler gave up on may exist upstream and are not retried.
func canResubmit(job *models.Job) bool {
	return job.ProcessingStatus == models.JobStatusError &&
		job.ExternalJobID == nil &&
		job.Message == submissionFailedMessage
}

func (s *Service) upstreamPayload(payload datatypes.JSON, jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("normalize request: %w", err)
	}
	out["id"] = jobID
	if s.webhookURL != "" {
		out["webhook_url"] = s.webhookURL
	}
	return out, nil
}

// GetJob returns a job owned by workspaceID.
func (s *Service) GetJob(workspaceID, id string) (*models.Job, error) {
	job, err := s.jobs.GetByIDForWorkspace(id, workspaceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// ListJobs returns a filtered page of a workspace's jobs.
func (s *Service) ListJobs(filter repository.JobFilter) ([]models.Job, int64, error) {
	return s.jobs.List(filter)
}

func resolveIdempotencyKey(header, clientID string) string {
	if k := strings.TrimSpace(header); k != "" {
		return k
	}
	if k := strings.TrimSpace(clientID); k != "" {
		return k
	}
	return uuid.New().String()
}

func upstreamStatus(err error) int {
	var upErr *toolkit.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}
