package mediajob

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/toolkit"
)

const reconcileBatchSize = 100

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	ExpiredSubmissions int
	Polled             int
	Finished           int
}

// Reconciler repairs jobs whose submission or webhook never arrived.
type Reconciler struct {
	jobs            repository.JobRepository
	status          toolkit.StatusChecker
	notifier        Notifier
	SubmittingAfter time.Duration
	ProcessingAfter time.Duration
	now             func() time.Time
}

func NewReconciler(jobs repository.JobRepository, status toolkit.StatusChecker, notifier Notifier, submittingAfter, processingAfter time.Duration) *Reconciler {
	return &Reconciler{
		jobs:            jobs,
		status:          status,
		notifier:        notifier,
		SubmittingAfter: submittingAfter,
		ProcessingAfter: processingAfter,
		now:             time.Now,
	}
}

// Run performs a single pass.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	now := r.now()

	stuck, err := r.jobs.ListStale(models.JobStatusSubmitting, now.Add(-r.SubmittingAfter), reconcileBatchSize)
	if err != nil {
		return stats, err
	}
	for _, job := range stuck {
		moved, err := finishJob(ctx, r.jobs, r.notifier, job.ID, repository.JobTerminalUpdate{
			Status:    models.JobStatusError,
			Message:   submissionUnconfirmedMessage,
			LastError: "job stayed in submitting past the reconcile window",
		})
		if err != nil {
			log.Errorf("[Reconcile] failed to expire job %s: %v", job.ID, err)
			continue
		}
		if moved {
			stats.ExpiredSubmissions++
		}
	}

	if r.status == nil {
		return stats, nil
	}
	running, err := r.jobs.ListStale(models.JobStatusProcessing, now.Add(-r.ProcessingAfter), reconcileBatchSize)
	if err != nil {
		return stats, err
	}
	for _, job := range running {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if job.ExternalJobID == nil || *job.ExternalJobID == "" {
			continue
		}
		stats.Polled++
		st, err := r.status.JobStatus(ctx, *job.ExternalJobID)
		if err != nil {
			log.Warnf("[Reconcile] status check for job %s failed: %v", job.ID, err)
			continue
		}
		update, ok := terminalUpdateFor(st)
		if !ok {
			continue
		}
		moved, err := finishJob(ctx, r.jobs, r.notifier, job.ID, update)
		if err != nil {
			log.Errorf("[Reconcile] failed to finish job %s: %v", job.ID, err)
			continue
		}
		if moved {
			stats.Finished++
		}
	}
	return stats, nil
}

func terminalUpdateFor(st *toolkit.JobStatus) (repository.JobTerminalUpdate, bool) {
	switch st.JobStatus {
	case toolkit.UpstreamStatusDone:
		return repository.JobTerminalUpdate{
			Status:     models.JobStatusCompleted,
			StatusCode: 200,
			Message:    "completed (reconciled)",
			Response:   datatypes.JSON(st.Response),
		}, true
	case toolkit.UpstreamStatusFailed:
		return repository.JobTerminalUpdate{
			Status:     models.JobStatusFailed,
			StatusCode: 500,
			Message:    "failed (reconciled)",
			LastError:  string(st.Response),
			Response:   datatypes.JSON(st.Response),
		}, true
	case toolkit.UpstreamStatusNotFound:
		return repository.JobTerminalUpdate{
			Status:    models.JobStatusError,
			Message:   "job unknown upstream",
			LastError: "toolkit has no record of this job",
		}, true
	default:
		return repository.JobTerminalUpdate{}, false
	}
}
