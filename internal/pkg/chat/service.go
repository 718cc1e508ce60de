package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/llm"
)

const (
	maxMessageLength = 32 * 1024
	maxMessages      = 500
)

var (
	ErrNotFound      = errors.New("chat not found")
	ErrEmptyMessage  = errors.New("message is required")
	ErrInvalidRole   = errors.New("message role must be system, user or assistant")
	ErrTooLong       = errors.New("message too long")
	ErrTooManyTurns  = errors.New("chat has too many messages")
	ErrNoModelConfig = errors.New("no model configured")
)

// Service manages user-owned chats and their model completions.
type Service struct {
	repo         repository.ChatRepository
	model        llm.Streamer
	defaultModel string
	now          func() time.Time
}

func NewService(repo repository.ChatRepository, model llm.Streamer, defaultModel string) *Service {
	return &Service{repo: repo, model: model, defaultModel: strings.TrimSpace(defaultModel), now: time.Now}
}

func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		repository.NewChatRepository(db),
		llm.NewClientFromEnv(),
		env.GetEnv("AI_DEFAULT_MODEL", "openai/gpt-4o-mini"),
	)
}

// CreateInput is the body of a new chat.
type CreateInput struct {
	Title    string               `json:"title"`
	Messages []models.ChatMessage `json:"messages"`
}

// UpdateInput changes title and/or messages. Nil fields are left alone.
type UpdateInput struct {
	Title    *string               `json:"title"`
	Messages *[]models.ChatMessage `json:"messages"`
}

// CompletionInput is one user turn sent to the model.
type CompletionInput struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// CompletionResult is the persisted outcome of a completion.
type CompletionResult struct {
	Chat    *models.Chat
	Content string
	Model   string
	Usage   llm.Usage
}

func (s *Service) Create(userID string, in CreateInput) (*models.Chat, error) {
	msgs, err := s.normalizeMessages(in.Messages)
	if err != nil {
		return nil, err
	}
	chat := &models.Chat{
		ID:       uuid.New().String(),
		UserID:   userID,
		Title:    models.DeriveChatTitle(in.Title, msgs),
		Messages: datatypes.JSONSlice[models.ChatMessage](msgs),
		Metadata: datatypes.NewJSONType(models.ChatMetadata{MessageCount: len(msgs)}),
	}
	if err := s.repo.Create(chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (s *Service) List(userID string, offset, limit int) ([]models.Chat, error) {
	return s.repo.ListByUser(userID, offset, limit)
}

func (s *Service) Get(userID, id string) (*models.Chat, error) {
	chat, err := s.repo.GetByIDForUser(id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return chat, err
}

func (s *Service) Update(userID, id string, in UpdateInput) (*models.Chat, error) {
	chat, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if in.Messages != nil {
		msgs, err := s.normalizeMessages(*in.Messages)
		if err != nil {
			return nil, err
		}
		chat.Messages = datatypes.JSONSlice[models.ChatMessage](msgs)
		meta := chat.Metadata.Data()
		meta.MessageCount = len(msgs)
		chat.Metadata = datatypes.NewJSONType(meta)
	}
	if in.Title != nil {
		chat.Title = models.DeriveChatTitle(*in.Title, chat.Messages)
	}
	if err := s.repo.Update(chat); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(userID, id)
}

func (s *Service) Delete(userID, id string) error {
	deleted, err := s.repo.DeleteForUser(id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// CheckCompletion loads the chat and rejects a turn that Complete would refuse,
// so callers can answer before they start streaming.
func (s *Service) CheckCompletion(userID, id string, in CompletionInput) (*models.Chat, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > maxMessageLength {
		return nil, ErrTooLong
	}

	chat, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if len(chat.Messages)+2 > maxMessages {
		return nil, ErrTooManyTurns
	}
	return chat, nil
}

// Complete streams the model's answer to onDelta and, only when the stream
// finished cleanly, stores the user and assistant turns in one transaction.
func (s *Service) Complete(ctx context.Context, userID, id string, in CompletionInput, onDelta func(string) error) (*CompletionResult, error) {
	chat, err := s.CheckCompletion(userID, id, in)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Message)

	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = s.defaultModel
	}
	if model == "" {
		return nil, ErrNoModelConfig
	}

	history := make([]llm.Message, 0, len(chat.Messages)+1)
	for _, m := range chat.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, llm.Message{Role: models.ChatRoleUser, Content: text})

	userTurn := models.ChatMessage{Role: models.ChatRoleUser, Content: text, CreatedAt: s.now().UTC()}
	var (
		answer strings.Builder
		usage  llm.Usage
	)
	err = s.model.StreamChatCompletion(ctx, llm.StreamRequest{Model: model, Messages: history},
		func(delta string) error {
			answer.WriteString(delta)
			if onDelta != nil {
				return onDelta(delta)
			}
			return nil
		},
		func(u llm.Usage) error {
			usage = u
			return nil
		},
	)
	if err != nil {
		log.Warnf("[Chat] completion for chat %s aborted: %v", id, err)
		return nil, err
	}

	assistantTurn := models.ChatMessage{Role: models.ChatRoleAssistant, Content: answer.String(), CreatedAt: s.now().UTC()}
	updated, err := s.repo.AppendTurn(id, userID, func(c *models.Chat) error {
		hadUserMessage := hasUserMessage(c.Messages)
		c.Messages = append(c.Messages, userTurn, assistantTurn)
		if !hadUserMessage && c.Title == models.DefaultChatTitle {
			c.Title = models.DeriveChatTitle("", c.Messages)
		}
		meta := c.Metadata.Data()
		meta.Model = model
		meta.PromptTokens += usage.PromptTokens
		meta.CompletionTokens += usage.CompletionTokens
		meta.TotalTokens += usage.TotalTokens
		meta.MessageCount = len(c.Messages)
		c.Metadata = datatypes.NewJSONType(meta)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persist completion: %w", err)
	}
	return &CompletionResult{Chat: updated, Content: assistantTurn.Content, Model: model, Usage: usage}, nil
}

func (s *Service) normalizeMessages(in []models.ChatMessage) ([]models.ChatMessage, error) {
	if len(in) > maxMessages {
		return nil, ErrTooManyTurns
	}
	out := make([]models.ChatMessage, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case models.ChatRoleSystem, models.ChatRoleUser, models.ChatRoleAssistant:
		default:
			return nil, ErrInvalidRole
		}
		if len(m.Content) > maxMessageLength {
			return nil, ErrTooLong
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		out = append(out, m)
	}
	return out, nil
}

func hasUserMessage(msgs []models.ChatMessage) bool {
	for _, m := range msgs {
		if m.Role == models.ChatRoleUser && strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}
