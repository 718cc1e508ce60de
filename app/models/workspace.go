package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Workspace is the billing and ownership scope. Each user owns exactly one
// workspace and the workspace ID equals the user ID issued by the auth provider.
type Workspace struct {
	ID                string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	OwnerEmail        string     `gorm:"type:varchar(200);default:''" json:"owner_email"`
	Plan              string     `gorm:"type:varchar(50);default:'free'" json:"plan"`
	NotifyOnJobFinish bool       `gorm:"default:false" json:"notify_on_job_finish"`
	APIKeyHash        string     `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix      string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt   *time.Time `json:"api_key_created_at"`
	APIKeyLastUsedAt  *time.Time `json:"api_key_last_used_at"`
	APIKeyRevokedAt   *time.Time `json:"api_key_revoked_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "mdk_"

// GetOrCreateWorkspace returns the workspace for userID, creating it with the
// free plan on first use. Safe under concurrent first requests.
func GetOrCreateWorkspace(db *gorm.DB, userID, email string) (*Workspace, error) {
	ws := Workspace{ID: userID, OwnerEmail: strings.TrimSpace(email), Plan: PlanFree}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ws).Error; err != nil {
		return nil, err
	}

	var stored Workspace
	if err := db.Where("id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	if email != "" && stored.OwnerEmail != email {
		stored.OwnerEmail = email
		if err := db.Model(&stored).Update("owner_email", email).Error; err != nil {
			return nil, err
		}
	}
	return &stored, nil
}

// EffectivePlan returns the plan, treating empty as free.
func (w *Workspace) EffectivePlan() string {
	if w == nil || strings.TrimSpace(w.Plan) == "" {
		return PlanFree
	}
	return w.Plan
}

// HasActiveAPIKey reports whether the workspace has an active API key configured
func (w *Workspace) HasActiveAPIKey() bool {
	return w != nil && w.APIKeyHash != "" && w.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, stores its hash on the struct and
// returns the raw secret. Callers persist the struct afterwards.
func (w *Workspace) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	w.APIKeyHash = hash
	w.APIKeyPrefix = prefix
	w.APIKeyCreatedAt = &now
	w.APIKeyRevokedAt = nil
	w.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (w *Workspace) RevokeAPIKey() {
	w.APIKeyHash = ""
	w.APIKeyPrefix = ""
	now := time.Now()
	w.APIKeyRevokedAt = &now
	w.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// IsAPIKey reports whether raw carries the workspace API key prefix.
func IsAPIKey(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), apiKeyPrefix)
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 16 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	return rawKey, rawKey[:16], HashAPIKey(rawKey), nil
}
