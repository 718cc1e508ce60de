package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
)

// workspaceRepository implements the WorkspaceRepository interface
type workspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository instance
func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepository{db: db}
}

// GetOrCreate returns the caller's workspace, creating it on first use
func (r *workspaceRepository) GetOrCreate(userID, email string) (*models.Workspace, error) {
	return models.GetOrCreateWorkspace(r.db, userID, email)
}

// GetByID retrieves a workspace by its ID
func (r *workspaceRepository) GetByID(id string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db.Where("id = ?", id).First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetByAPIKeyHash resolves an active API key hash to its workspace.
func (r *workspaceRepository) GetByAPIKeyHash(hash string) (*models.Workspace, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var ws models.Workspace
	query := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *workspaceRepository) Save(ws *models.Workspace) error {
	return r.db.Save(ws).Error
}

func (r *workspaceRepository) UpdatePlan(id, plan string) error {
	return r.db.Model(&models.Workspace{}).Where("id = ?", id).Update("plan", plan).Error
}

func (r *workspaceRepository) TouchAPIKeyUsage(id string, at time.Time) error {
	return r.db.Model(&models.Workspace{}).Where("id = ?", id).Update("api_key_last_used_at", at).Error
}
