package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
)

// WorkspaceRepository defines the interface for workspace-related database operations
type WorkspaceRepository interface {
	GetOrCreate(userID, email string) (*models.Workspace, error)
	GetByID(id string) (*models.Workspace, error)
	GetByAPIKeyHash(hash string) (*models.Workspace, error)
	Save(ws *models.Workspace) error
	UpdatePlan(id, plan string) error
	TouchAPIKeyUsage(id string, at time.Time) error
}

// JobTerminalUpdate carries the outcome written when a media job finishes.
type JobTerminalUpdate struct {
	Status     string
	StatusCode int
	Message    string
	LastError  string
	Response   datatypes.JSON
	RunTime    float64
	QueueTime  float64
	TotalTime  float64
}

// JobFilter narrows job listings.
type JobFilter struct {
	WorkspaceID string
	Status      string
	Operation   string
	Offset      int
	Limit       int
}

// JobRepository defines the interface for media job persistence. Status
// changes are conditional so concurrent writers can never move a job backwards.
type JobRepository interface {
	CreateSubmitting(job *models.Job) (bool, *models.Job, error)
	GetByID(id string) (*models.Job, error)
	GetByIDForWorkspace(id, workspaceID string) (*models.Job, error)
	GetByIdempotencyKey(workspaceID, key string) (*models.Job, error)
	GetByExternalID(externalJobID string) (*models.Job, error)
	List(filter JobFilter) ([]models.Job, int64, error)
	CountActiveByWorkspace(workspaceID string) (int64, error)
	MarkProcessing(id, externalJobID, message string, response datatypes.JSON) (bool, error)
	MarkTerminal(id string, update JobTerminalUpdate) (bool, error)
	ReopenSubmission(id, failedMessage string) (bool, error)
	RecordWebhookDelivery(id string) error
	ListStale(status string, updatedBefore time.Time, limit int) ([]models.Job, error)
}

// ChatRepository defines the interface for chat persistence. Every method is
// scoped to the owning user.
type ChatRepository interface {
	Create(chat *models.Chat) error
	GetByIDForUser(id, userID string) (*models.Chat, error)
	ListByUser(userID string, offset, limit int) ([]models.Chat, error)
	Update(chat *models.Chat) error
	DeleteForUser(id, userID string) (bool, error)
	AppendTurn(id, userID string, apply func(chat *models.Chat) error) (*models.Chat, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Workspace WorkspaceRepository
	Job       JobRepository
	Chat      ChatRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Workspace: NewWorkspaceRepository(db),
		Job:       NewJobRepository(db),
		Chat:      NewChatRepository(db),
	}
}
