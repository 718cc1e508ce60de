package controllers

import (
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/billing"
	"github.com/ManuelReschke/MediaDash/internal/pkg/chat"
	"github.com/ManuelReschke/MediaDash/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mail"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
	"github.com/ManuelReschke/MediaDash/internal/pkg/s3upload"
)

// Controllers bundles every HTTP controller the router installs.
type Controllers struct {
	MediaJobs *MediaJobController
	Webhooks  *WebhookController
	Billing   *BillingController
	Chat      *ChatController
	Email     *EmailController
	Account   *AccountController
	Uploads   *UploadController
}

// NewControllers wires controllers from the database and the job queue
// manager. manager may be nil, in which case emails are sent inline and job
// notifications are skipped.
func NewControllers(db *gorm.DB, manager *jobqueue.Manager) *Controllers {
	repos := repository.NewRepositories(db)

	var (
		queue    jobqueue.Enqueuer
		notifier mediajob.Notifier
	)
	if manager != nil {
		queue = manager.GetQueue()
		notifier = manager.Notifier()
	}

	var presigner s3upload.Presigner
	if cfg, err := s3upload.LoadConfig(); err != nil {
		log.Warnf("[Upload] presigned uploads disabled: %v", err)
	} else if client, err := s3upload.NewClient(cfg); err != nil {
		log.Errorf("[Upload] failed to create S3 client: %v", err)
	} else {
		presigner = client
	}

	return &Controllers{
		MediaJobs: NewMediaJobController(mediajob.NewServiceFromDB(db)),
		Webhooks:  NewWebhookController(mediajob.NewWebhookProcessorFromDB(db, notifier), billing.NewServiceFromDB(db)),
		Billing:   NewBillingController(billing.NewServiceFromDB(db)),
		Chat:      NewChatController(chat.NewServiceFromDB(db)),
		Email:     NewEmailController(queue, mail.NewSMTPMailerFromEnv()),
		Account:   NewAccountController(repos),
		Uploads:   NewUploadController(presigner),
	}
}
