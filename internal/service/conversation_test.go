package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConversation(id, workspaceID, title string) *domain.Conversation {
	now := time.Now().UTC()
	return &domain.Conversation{ID: id, WorkspaceID: workspaceID, Title: title, CreatedAt: now, UpdatedAt: now}
}

func TestConversationCreate(t *testing.T) {
	convRepo := new(MockConversationRepository)
	svc := NewConversationService(convRepo, new(MockMessageRepository), new(MockChatClient), new(MockContextSearcher))
	svc.uuidGen = NewMockUUIDGenerator("conv-1")

	convRepo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
		return c.ID == "conv-1" && c.WorkspaceID == "ws-1"
	})).Return(nil)

	conv, err := svc.Create(context.Background(), CreateConversationInput{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)

	_, err = svc.Create(context.Background(), CreateConversationInput{})
	require.Error(t, err)
}

func TestAskGroundsReplyOnSearchResults(t *testing.T) {
	convRepo := new(MockConversationRepository)
	msgRepo := new(MockMessageRepository)
	chat := new(MockChatClient)
	searcher := new(MockContextSearcher)
	svc := NewConversationService(convRepo, msgRepo, chat, searcher)
	svc.uuidGen = NewMockUUIDGenerator("msg-1", "msg-2")

	convRepo.On("GetByID", mock.Anything, "conv-1").Return(testConversation("conv-1", "ws-1", "Ops"), nil)
	msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Role == domain.MessageRoleUser && m.Content == "how do I rotate keys?"
	})).Return(nil).Once()
	msgRepo.On("ListByConversation", mock.Anything, "conv-1", maxHistoryMessages).Return([]*domain.Message{
		{ID: "msg-1", ConversationID: "conv-1", Role: domain.MessageRoleUser, Content: "how do I rotate keys?", CreatedAt: time.Now().UTC()},
	}, nil)
	searcher.On("Search", mock.Anything, mock.MatchedBy(func(input SearchInput) bool {
		return input.WorkspaceID == "ws-1" && input.Query == "how do I rotate keys?" && input.Limit == maxContextItems
	})).Return([]*SearchResult{
		{ID: "item-1", Title: "Key rotation runbook", Content: "rotate via the admin CLI", Score: 0.91},
	}, nil)
	chat.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(messages []openai.ChatMessage) bool {
		// System prompt, context block, then the history.
		return len(messages) == 3 &&
			messages[0].Role == "system" &&
			strings.Contains(messages[1].Content, "Key rotation runbook") &&
			messages[2].Role == "user"
	})).Return("Use the admin CLI.", nil)
	msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Role == domain.MessageRoleAssistant && m.Content == "Use the admin CLI."
	})).Return(nil).Once()

	out, err := svc.Ask(context.Background(), AskInput{ConversationID: "conv-1", Content: "how do I rotate keys?"})
	require.NoError(t, err)
	assert.Equal(t, "Use the admin CLI.", out.AssistantMessage.Content)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "item-1", out.Sources[0].ID)

	msgRepo.AssertExpectations(t)
	chat.AssertExpectations(t)
}

func TestAskDegradesWhenSearchFails(t *testing.T) {
	convRepo := new(MockConversationRepository)
	msgRepo := new(MockMessageRepository)
	chat := new(MockChatClient)
	searcher := new(MockContextSearcher)
	svc := NewConversationService(convRepo, msgRepo, chat, searcher)
	svc.uuidGen = NewMockUUIDGenerator("msg-1", "msg-2")

	convRepo.On("GetByID", mock.Anything, "conv-1").Return(testConversation("conv-1", "ws-1", "Ops"), nil)
	msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	msgRepo.On("ListByConversation", mock.Anything, "conv-1", maxHistoryMessages).Return([]*domain.Message{}, nil)
	searcher.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("search down"))
	chat.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(messages []openai.ChatMessage) bool {
		// No context block when retrieval fails, just the system prompt.
		return len(messages) == 1
	})).Return("I don't have that information.", nil)

	out, err := svc.Ask(context.Background(), AskInput{ConversationID: "conv-1", Content: "anything"})
	require.NoError(t, err)
	assert.Empty(t, out.Sources)
}

func TestAskEmptyContent(t *testing.T) {
	convRepo := new(MockConversationRepository)
	svc := NewConversationService(convRepo, new(MockMessageRepository), new(MockChatClient), new(MockContextSearcher))

	_, err := svc.Ask(context.Background(), AskInput{ConversationID: "conv-1", Content: "   "})
	require.Error(t, err)

	convRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestAskChatFailureSurfaces(t *testing.T) {
	convRepo := new(MockConversationRepository)
	msgRepo := new(MockMessageRepository)
	chat := new(MockChatClient)
	svc := NewConversationService(convRepo, msgRepo, chat, nil)
	svc.uuidGen = NewMockUUIDGenerator("msg-1")

	convRepo.On("GetByID", mock.Anything, "conv-1").Return(testConversation("conv-1", "ws-1", "Ops"), nil)
	msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	msgRepo.On("ListByConversation", mock.Anything, "conv-1", maxHistoryMessages).Return([]*domain.Message{}, nil)
	chat.On("CreateChatCompletion", mock.Anything, mock.Anything).Return("", errors.New("model overloaded"))

	_, err := svc.Ask(context.Background(), AskInput{ConversationID: "conv-1", Content: "anything"})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeInternalError, domainErr.Code)
}

func TestAskDerivesTitleForUntitledConversation(t *testing.T) {
	convRepo := new(MockConversationRepository)
	msgRepo := new(MockMessageRepository)
	chat := new(MockChatClient)
	svc := NewConversationService(convRepo, msgRepo, chat, nil)
	svc.uuidGen = NewMockUUIDGenerator("msg-1", "msg-2")

	convRepo.On("GetByID", mock.Anything, "conv-1").Return(testConversation("conv-1", "ws-1", ""), nil)
	msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	msgRepo.On("ListByConversation", mock.Anything, "conv-1", maxHistoryMessages).Return([]*domain.Message{}, nil)
	chat.On("CreateChatCompletion", mock.Anything, mock.Anything).Return("Sure.", nil)
	convRepo.On("UpdateTitle", mock.Anything, "conv-1", "What is our backup policy?").Return(nil)

	_, err := svc.Ask(context.Background(), AskInput{ConversationID: "conv-1", Content: "What is our backup policy?"})
	require.NoError(t, err)

	convRepo.AssertExpectations(t)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short question", deriveTitle("short   question"))

	long := strings.Repeat("longwords ", 20)
	title := deriveTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), 83)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestConversationList(t *testing.T) {
	convRepo := new(MockConversationRepository)
	svc := NewConversationService(convRepo, new(MockMessageRepository), nil, nil)

	convRepo.On("ListByWorkspaceWithCursor", mock.Anything, "ws-1", mock.Anything, 20).
		Return(&ConversationPageResult{
			Conversations: []*domain.Conversation{testConversation("conv-1", "ws-1", "Ops")},
			NextCursor:    "next",
			HasMore:       true,
		}, nil)

	out, err := svc.List(context.Background(), ListConversationsInput{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Len(t, out.Conversations, 1)
	assert.True(t, out.HasMore)
}
