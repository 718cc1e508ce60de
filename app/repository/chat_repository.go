package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/MediaDash/app/models"
)

const maxChatPageSize = 100

// chatRepository implements the ChatRepository interface
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository instance
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(chat *models.Chat) error {
	return r.db.Create(chat).Error
}

func (r *chatRepository) GetByIDForUser(id, userID string) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListByUser returns the user's chats, most recently updated first, without messages.
func (r *chatRepository) ListByUser(userID string, offset, limit int) ([]models.Chat, error) {
	if limit <= 0 || limit > maxChatPageSize {
		limit = maxChatPageSize
	}
	var chats []models.Chat
	err := r.db.Omit("messages").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&chats).Error
	return chats, err
}

// Update writes title, messages and metadata of a chat owned by chat.UserID.
func (r *chatRepository) Update(chat *models.Chat) error {
	tx := r.db.Model(&models.Chat{}).
		Where("id = ? AND user_id = ?", chat.ID, chat.UserID).
		Select("title", "messages", "metadata").
		Updates(chat)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) DeleteForUser(id, userID string) (bool, error) {
	tx := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Chat{})
	return tx.RowsAffected > 0, tx.Error
}

// AppendTurn loads the chat inside a transaction, lets apply mutate it and
// saves the result. The row is locked where the database supports it.
func (r *chatRepository) AppendTurn(id, userID string, apply func(chat *models.Chat) error) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ? AND user_id = ?", id, userID).First(&chat).Error; err != nil {
			return err
		}
		if err := apply(&chat); err != nil {
			return err
		}
		return tx.Save(&chat).Error
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}
