package domain

import (
	"fmt"
	"time"
)

// MessageRole represents the author of a conversation message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID          string
	WorkspaceID string
	Title       string
	Model       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message represents a single message within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// NewConversation creates a new Conversation instance
func NewConversation(id, workspaceID, title, model string, now time.Time) *Conversation {
	return &Conversation{
		ID:          id,
		WorkspaceID: workspaceID,
		Title:       title,
		Model:       model,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewMessage creates a new Message instance
func NewMessage(id, conversationID string, role MessageRole, content string, now time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
}

// ValidateConversation validates a Conversation instance
func ValidateConversation(c *Conversation) error {
	if c == nil {
		return fmt.Errorf("conversation cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	if c.WorkspaceID == "" {
		return fmt.Errorf("conversation WorkspaceID is required")
	}

	// Title may be empty: untitled conversations get a title derived from the
	// first user message.
	return nil
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	if m.ConversationID == "" {
		return fmt.Errorf("message ConversationID is required")
	}

	if m.Content == "" {
		return fmt.Errorf("message Content is required")
	}

	if !isValidMessageRole(m.Role) {
		return fmt.Errorf("message Role is invalid: %s", m.Role)
	}

	return nil
}

func isValidMessageRole(r MessageRole) bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	}
	return false
}
