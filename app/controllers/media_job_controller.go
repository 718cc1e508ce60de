package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
)

// MediaJobController proxies media operations to the toolkit and exposes the
// tracked jobs of the caller's workspace.
type MediaJobController struct {
	jobs *mediajob.Service
}

// NewMediaJobController creates a media job controller around the submission service
func NewMediaJobController(jobs *mediajob.Service) *MediaJobController {
	return &MediaJobController{jobs: jobs}
}

// HandleSubmit returns the handler for one media operation.
func (mc *MediaJobController) HandleSubmit(op mediajob.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := requireCaller(c)
		if !ok {
			return nil
		}

		res, err := mc.jobs.Submit(c.UserContext(), mediajob.SubmitInput{
			Operation:      op,
			Caller:         caller,
			Body:           append([]byte(nil), c.Body()...),
			IdempotencyKey: c.Get("Idempotency-Key"),
		})
		if err != nil {
			return mc.submitError(c, op, err)
		}

		job := res.Job
		if res.Replayed && job.ProcessingStatus == models.JobStatusError {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"job_id":  job.ID,
				"status":  job.ProcessingStatus,
				"error":   "job_failed",
				"message": "job could not be submitted, retry with a new Idempotency-Key",
			})
		}
		message := job.Message
		if res.Replayed {
			message = "job already submitted"
		} else if message == "" {
			message = "processing"
		}
		return c.JSON(fiber.Map{
			"success":    true,
			"job_id":     job.ID,
			"nca_job_id": externalID(job),
			"status":     job.ProcessingStatus,
			"message":    message,
		})
	}
}

func (mc *MediaJobController) submitError(c *fiber.Ctx, op mediajob.Operation, err error) error {
	var verr *mediajob.ValidationError
	var terr *mediajob.TrackingError
	switch {
	case errors.As(err, &verr):
		return badRequest(c, verr.Error())
	case errors.As(err, &terr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"job_id":  terr.JobID,
			"error":   "job accepted upstream but tracking update failed",
		})
	case errors.Is(err, mediajob.ErrPlanLimit):
		return errorJSON(c, fiber.StatusTooManyRequests, "plan_limit", "Too many active jobs for your plan")
	case errors.Is(err, mediajob.ErrOperationDenied):
		return errorJSON(c, fiber.StatusForbidden, "plan_restricted", "This operation is not available on your plan")
	case errors.Is(err, mediajob.ErrUpstream):
		return errorJSON(c, fiber.StatusInternalServerError, "upstream_error", "Media processing service is unavailable, please try again later")
	default:
		log.Errorf("[MediaJob] %s failed: %v", op.Name, err)
		return internalError(c, "Failed to submit job")
	}
}

// HandleListJobs returns a page of the workspace's jobs, newest first.
func (mc *MediaJobController) HandleListJobs(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	offset, limit := pagination(c)
	filter := repository.JobFilter{
		WorkspaceID: caller.WorkspaceID,
		Status:      strings.TrimSpace(c.Query("status")),
		Operation:   strings.TrimSpace(c.Query("operation")),
		Offset:      offset,
		Limit:       limit,
	}
	jobs, total, err := mc.jobs.ListJobs(filter)
	if err != nil {
		log.Errorf("[MediaJob] list jobs for %s: %v", caller.WorkspaceID, err)
		return internalError(c, "Failed to load jobs")
	}
	return c.JSON(fiber.Map{
		"jobs":   jobs,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// HandleGetJob returns one job including request and response payloads.
func (mc *MediaJobController) HandleGetJob(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	job, err := mc.jobs.GetJob(caller.WorkspaceID, c.Params("id"))
	if err != nil {
		if errors.Is(err, mediajob.ErrJobNotFound) {
			return notFound(c, "Job not found")
		}
		log.Errorf("[MediaJob] get job %s: %v", c.Params("id"), err)
		return internalError(c, "Failed to load job")
	}
	return c.JSON(job)
}

func externalID(job *models.Job) string {
	if job.ExternalJobID == nil {
		return ""
	}
	return *job.ExternalJobID
}
