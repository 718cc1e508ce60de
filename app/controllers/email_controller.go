package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
)

// EmailController queues transactional emails. When the queue is unavailable
// the message is sent inline through the fallback sender.
type EmailController struct {
	queue    jobqueue.Enqueuer
	fallback mail.Sender
}

// NewEmailController creates an email controller. queue may be nil.
func NewEmailController(queue jobqueue.Enqueuer, fallback mail.Sender) *EmailController {
	return &EmailController{queue: queue, fallback: fallback}
}

// HandleSend validates {to, subject, html} and queues it for delivery.
func (ec *EmailController) HandleSend(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var msg mail.Message
	if err := c.BodyParser(&msg); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}
	msg.To = strings.TrimSpace(msg.To)
	msg.Subject = strings.TrimSpace(msg.Subject)
	if err := mail.Validate(msg); err != nil {
		return badRequest(c, err.Error())
	}

	if ec.queue != nil {
		payload := jobqueue.SendEmailJobPayload{To: msg.To, Subject: msg.Subject, HTML: msg.HTML}
		job, err := ec.queue.EnqueueJob(jobqueue.JobTypeSendEmail, payload.ToMap())
		if err == nil {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true, "job_id": job.ID})
		}
		log.Warnf("[Mail] enqueue failed for workspace %s, sending inline: %v", caller.WorkspaceID, err)
	}

	if ec.fallback == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "email_unavailable", "Email delivery is not available")
	}
	if err := ec.fallback.Send(c.UserContext(), msg); err != nil {
		log.Errorf("[Mail] inline send failed for workspace %s: %v", caller.WorkspaceID, err)
		return errorJSON(c, fiber.StatusBadGateway, "email_failed", "Failed to send email")
	}
	return c.JSON(fiber.Map{"queued": false, "sent": true})
}
