package mediajob

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/app/repository"
)

// finishJob applies a terminal update and notifies on a fresh transition.
func finishJob(ctx context.Context, jobs repository.JobRepository, notifier Notifier, id string, update repository.JobTerminalUpdate) (bool, error) {
	moved, err := jobs.MarkTerminal(id, update)
	if err != nil || !moved {
		return moved, err
	}
	log.Infof("[MediaJob] job %s -> %s", id, update.Status)
	if notifier == nil {
		return true, nil
	}
	job, err := jobs.GetByID(id)
	if err != nil {
		log.Warnf("[MediaJob] reload of job %s for notification failed: %v", id, err)
		return true, nil
	}
	if err := notifier.JobFinished(ctx, job); err != nil {
		log.Warnf("[MediaJob] notification for job %s failed: %v", id, err)
	}
	return true, nil
}
