package jobqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
)

var jobFinishedTemplate = template.Must(template.New("job_finished").Parse(`<p>Your {{.Operation}} job <code>{{.ID}}</code> finished with status <strong>{{.Status}}</strong>.</p>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">View job</a></p>{{end}}`))

// EmailProcessor delivers queued emails and media job notifications.
type EmailProcessor struct {
	sender     mail.Sender
	jobs       repository.JobRepository
	workspaces repository.WorkspaceRepository
}

func NewEmailProcessor(sender mail.Sender, jobs repository.JobRepository, workspaces repository.WorkspaceRepository) *EmailProcessor {
	return &EmailProcessor{sender: sender, jobs: jobs, workspaces: workspaces}
}

// Register attaches the processor's handlers to q.
func (p *EmailProcessor) Register(q *Queue) {
	q.Handle(JobTypeSendEmail, p.processSendEmailJob)
	q.Handle(JobTypeMediaJobFinished, p.processMediaJobFinishedJob)
}

func (p *EmailProcessor) processSendEmailJob(ctx context.Context, job *Job) error {
	payload, err := SendEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid send_email payload: %w", err)
	}
	return p.sender.Send(ctx, mail.Message{To: payload.To, Subject: payload.Subject, HTML: payload.HTML})
}

// processMediaJobFinishedJob mails the workspace owner when they opted in.
func (p *EmailProcessor) processMediaJobFinishedJob(ctx context.Context, job *Job) error {
	payload, err := MediaJobFinishedPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid media_job_finished payload: %w", err)
	}

	ws, err := p.workspaces.GetByID(payload.WorkspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !ws.NotifyOnJobFinish || ws.OwnerEmail == "" {
		log.Debugf("[JobQueue] workspace %s has no job notifications enabled", ws.ID)
		return nil
	}

	mediaJob, err := p.jobs.GetByID(payload.MediaJobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	msg, err := renderJobFinishedEmail(ws.OwnerEmail, mediaJob)
	if err != nil {
		return err
	}
	return p.sender.Send(ctx, msg)
}

func renderJobFinishedEmail(to string, job *models.Job) (mail.Message, error) {
	var buf bytes.Buffer
	data := struct {
		ID, Operation, Status, Message, Link string
	}{
		ID:        job.ID,
		Operation: job.Operation,
		Status:    job.ProcessingStatus,
		Message:   job.Message,
		Link:      env.PublicURL("/api/v1/jobs/" + job.ID),
	}
	if err := jobFinishedTemplate.Execute(&buf, data); err != nil {
		return mail.Message{}, err
	}
	return mail.Message{
		To:      to,
		Subject: fmt.Sprintf("Media job %s", job.ProcessingStatus),
		HTML:    buf.String(),
	}, nil
}

// JobFinishedNotifier queues owner notifications for finished media jobs.
type JobFinishedNotifier struct {
	queue Enqueuer
}

func NewJobFinishedNotifier(queue Enqueuer) *JobFinishedNotifier {
	return &JobFinishedNotifier{queue: queue}
}

func (n *JobFinishedNotifier) JobFinished(_ context.Context, job *models.Job) error {
	_, err := n.queue.EnqueueJob(JobTypeMediaJobFinished, MediaJobFinishedPayload{
		MediaJobID:  job.ID,
		WorkspaceID: job.WorkspaceID,
		Status:      job.ProcessingStatus,
	}.ToMap())
	return err
}
