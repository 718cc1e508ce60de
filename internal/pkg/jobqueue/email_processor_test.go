package jobqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
)

type recordingSender struct {
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type recordingEnqueuer struct {
	jobs []Job
	err  error
}

func (e *recordingEnqueuer) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	if e.err != nil {
		return nil, e.err
	}
	job := Job{ID: uuid.NewString(), Type: jobType, Status: JobStatusPending, Payload: payload}
	e.jobs = append(e.jobs, job)
	return &job, nil
}

func newProcessorFixture(t *testing.T) (*EmailProcessor, *recordingSender, *repository.Repositories) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	repos := repository.NewRepositories(db)
	sender := &recordingSender{}
	return NewEmailProcessor(sender, repos.Job, repos.Workspace), sender, repos
}

func finishedMediaJob(t *testing.T, repos *repository.Repositories, workspaceID string) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:             uuid.NewString(),
		UserID:         workspaceID,
		WorkspaceID:    workspaceID,
		IdempotencyKey: uuid.NewString(),
		Operation:      models.OperationVideoCut,
	}
	_, _, err := repos.Job.CreateSubmitting(job)
	require.NoError(t, err)
	_, err = repos.Job.MarkTerminal(job.ID, repository.JobTerminalUpdate{Status: models.JobStatusCompleted, StatusCode: 200, Message: "success"})
	require.NoError(t, err)
	stored, err := repos.Job.GetByID(job.ID)
	require.NoError(t, err)
	return stored
}

func TestEmailProcessor_SendEmail(t *testing.T) {
	p, sender, _ := newProcessorFixture(t)

	job := &Job{Type: JobTypeSendEmail, Payload: SendEmailJobPayload{To: "a@example.com", Subject: "Hello", HTML: "<p>hi</p>"}.ToMap()}
	require.NoError(t, p.processSendEmailJob(context.Background(), job))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, mail.Message{To: "a@example.com", Subject: "Hello", HTML: "<p>hi</p>"}, sender.sent[0])

	sender.err = errors.New("smtp down")
	assert.Error(t, p.processSendEmailJob(context.Background(), job))
}

func TestEmailProcessor_MediaJobFinished(t *testing.T) {
	tests := []struct {
		name     string
		optIn    bool
		email    string
		wantSent bool
	}{
		{"opted in", true, "owner@example.com", true},
		{"opted out", false, "owner@example.com", false},
		{"no address", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sender, repos := newProcessorFixture(t)
			ws, err := repos.Workspace.GetOrCreate("ws-1", tt.email)
			require.NoError(t, err)
			ws.NotifyOnJobFinish = tt.optIn
			require.NoError(t, repos.Workspace.Save(ws))
			mediaJob := finishedMediaJob(t, repos, "ws-1")

			job := &Job{Type: JobTypeMediaJobFinished, Payload: MediaJobFinishedPayload{
				MediaJobID: mediaJob.ID, WorkspaceID: "ws-1", Status: mediaJob.ProcessingStatus,
			}.ToMap()}
			require.NoError(t, p.processMediaJobFinishedJob(context.Background(), job))

			if !tt.wantSent {
				assert.Empty(t, sender.sent)
				return
			}
			require.Len(t, sender.sent, 1)
			assert.Equal(t, "owner@example.com", sender.sent[0].To)
			assert.Equal(t, "Media job completed", sender.sent[0].Subject)
			assert.Contains(t, sender.sent[0].HTML, mediaJob.ID)
			assert.Contains(t, sender.sent[0].HTML, "video_cut")
		})
	}
}

func TestEmailProcessor_MediaJobFinished_UnknownRecordsAreDropped(t *testing.T) {
	p, sender, repos := newProcessorFixture(t)

	job := &Job{Type: JobTypeMediaJobFinished, Payload: MediaJobFinishedPayload{MediaJobID: "x", WorkspaceID: "missing"}.ToMap()}
	require.NoError(t, p.processMediaJobFinishedJob(context.Background(), job))

	ws, err := repos.Workspace.GetOrCreate("ws-1", "owner@example.com")
	require.NoError(t, err)
	ws.NotifyOnJobFinish = true
	require.NoError(t, repos.Workspace.Save(ws))
	job = &Job{Type: JobTypeMediaJobFinished, Payload: MediaJobFinishedPayload{MediaJobID: "gone", WorkspaceID: "ws-1"}.ToMap()}
	require.NoError(t, p.processMediaJobFinishedJob(context.Background(), job))

	assert.Empty(t, sender.sent)
}

func TestEmailProcessor_Register(t *testing.T) {
	p, _, _ := newProcessorFixture(t)
	queue := NewQueueWithClient(offlineClient(t), 1)
	p.Register(queue)

	assert.NotNil(t, queue.handlerFor(JobTypeSendEmail))
	assert.NotNil(t, queue.handlerFor(JobTypeMediaJobFinished))
}

func TestJobFinishedNotifier(t *testing.T) {
	enq := &recordingEnqueuer{}
	n := NewJobFinishedNotifier(enq)

	err := n.JobFinished(context.Background(), &models.Job{ID: "m1", WorkspaceID: "ws-1", ProcessingStatus: models.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, enq.jobs, 1)
	assert.Equal(t, JobTypeMediaJobFinished, enq.jobs[0].Type)
	payload, err := MediaJobFinishedPayloadFromMap(enq.jobs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, MediaJobFinishedPayload{MediaJobID: "m1", WorkspaceID: "ws-1", Status: models.JobStatusFailed}, *payload)

	enq.err = errors.New("redis down")
	assert.Error(t, n.JobFinished(context.Background(), &models.Job{ID: "m2"}))
}
