package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConversation(t *testing.T) {
	now := time.Now().UTC()

	conv := NewConversation("conv-1", "ws-1", "Support chat", "gpt-4o-mini", now)
	require.NoError(t, ValidateConversation(conv))

	// Untitled conversations are allowed; the title is derived later.
	require.NoError(t, ValidateConversation(&Conversation{ID: "conv-1", WorkspaceID: "ws-1"}))

	assert.Error(t, ValidateConversation(nil))
	assert.Error(t, ValidateConversation(&Conversation{ID: "conv-1", Title: "Chat"}))
}

func TestValidateMessage(t *testing.T) {
	now := time.Now().UTC()

	msg := NewMessage("msg-1", "conv-1", MessageRoleUser, "hello", now)
	require.NoError(t, ValidateMessage(msg))

	assert.Error(t, ValidateMessage(nil))
	assert.Error(t, ValidateMessage(&Message{ID: "msg-1", ConversationID: "conv-1", Role: MessageRoleUser}))
	assert.Error(t, ValidateMessage(&Message{ID: "msg-1", ConversationID: "conv-1", Role: "moderator", Content: "hi"}))
}
