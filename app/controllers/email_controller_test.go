package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MediaDash/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
)

type memoryQueue struct {
	err  error
	jobs []*jobqueue.Job
}

func (q *memoryQueue) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	job := &jobqueue.Job{ID: "job-1", Type: jobType, Payload: payload}
	q.jobs = append(q.jobs, job)
	return job, nil
}

type memorySender struct {
	sent []mail.Message
	err  error
}

func (s *memorySender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newEmailApp(queue jobqueue.Enqueuer, sender mail.Sender) *fiber.App {
	ec := NewEmailController(queue, sender)
	app := fiber.New()
	app.Post("/api/v1/email/send", asUser(testUserID), ec.HandleSend)
	return app
}

func TestEmailSend_Queues(t *testing.T) {
	queue := &memoryQueue{}
	sender := &memorySender{}
	app := newEmailApp(queue, sender)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/email/send",
		map[string]string{"to": "a@example.com", "subject": "Hi", "html": "<p>x</p>"}, nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["queued"])
	assert.Equal(t, "job-1", body["job_id"])
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, jobqueue.JobTypeSendEmail, queue.jobs[0].Type)
	assert.Equal(t, "a@example.com", queue.jobs[0].Payload["to"])
	assert.Empty(t, sender.sent)
}

func TestEmailSend_Validation(t *testing.T) {
	queue := &memoryQueue{}
	app := newEmailApp(queue, &memorySender{})

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing to", map[string]string{"subject": "Hi", "html": "x"}},
		{"bad address", map[string]string{"to": "nope", "subject": "Hi", "html": "x"}},
		{"empty subject", map[string]string{"to": "a@example.com", "subject": "  ", "html": "x"}},
		{"empty html", map[string]string{"to": "a@example.com", "subject": "Hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, "/api/v1/email/send", tt.body, nil)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request", body["error"])
		})
	}
	assert.Empty(t, queue.jobs)
}

func TestEmailSend_FallsBackInline(t *testing.T) {
	sender := &memorySender{}
	app := newEmailApp(&memoryQueue{err: errors.New("redis down")}, sender)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/email/send",
		map[string]string{"to": "a@example.com", "subject": "Hi", "html": "<p>x</p>"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["queued"])
	require.Len(t, sender.sent, 1)

	app = newEmailApp(nil, &memorySender{err: mail.ErrNotConfigured})
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/email/send",
		map[string]string{"to": "a@example.com", "subject": "Hi", "html": "<p>x</p>"}, nil)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "email_failed", body["error"])
}
