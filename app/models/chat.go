package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	DefaultChatTitle   = "New Chat"
	MaxChatTitleLength = 50
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn stored inside Chat.Messages.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMetadata aggregates model usage across the conversation.
type ChatMetadata struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	MessageCount     int    `json:"message_count"`
}

// Chat is a user-owned assistant conversation.
type Chat struct {
	ID        string                           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string                           `gorm:"type:varchar(64);not null;index:idx_chats_user_updated,priority:1" json:"user_id"`
	Title     string                           `gorm:"type:varchar(200);not null" json:"title"`
	Messages  datatypes.JSONSlice[ChatMessage] `json:"messages"`
	Metadata  datatypes.JSONType[ChatMetadata] `json:"metadata"`
	CreatedAt time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                        `gorm:"autoUpdateTime;index:idx_chats_user_updated,priority:2" json:"updated_at"`
}

// DeriveChatTitle picks the title for a chat: the explicit title when set,
// otherwise the first user message cut to MaxChatTitleLength characters,
// otherwise DefaultChatTitle.
func DeriveChatTitle(explicit string, messages []ChatMessage) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return TruncateTitle(t)
	}
	for _, m := range messages {
		if m.Role != ChatRoleUser {
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			return TruncateTitle(c)
		}
	}
	return DefaultChatTitle
}

// TruncateTitle limits s to MaxChatTitleLength runes.
func TruncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= MaxChatTitleLength {
		return s
	}
	r := []rune(s)
	return string(r[:MaxChatTitleLength])
}
