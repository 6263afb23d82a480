package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/service"
)

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) Create(ctx context.Context, input service.CreateConversationInput) (*domain.Conversation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) List(ctx context.Context, input service.ListConversationsInput) (*service.ListConversationsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListConversationsOutput), args.Error(1)
}

func (m *MockConversationService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockConversationService) Messages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockConversationService) Ask(ctx context.Context, input service.AskInput) (*service.AskOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskOutput), args.Error(1)
}

func newTestConversation() *domain.Conversation {
	now := time.Now().UTC()
	return &domain.Conversation{
		ID:          "conv-123",
		WorkspaceID: "ws-456",
		Title:       "Deployment questions",
		Model:       "gpt-4o-mini",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestConversationHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(input service.CreateConversationInput) bool {
		return input.WorkspaceID == "ws-456" && input.Title == "Deployment questions"
	})).Return(newTestConversation(), nil)

	body := `{"title":"Deployment questions"}`
	req := requestWithWorkspaceID(http.MethodPost, "/conversations", []byte(body))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_Create_UntitledAllowed(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	conversation := newTestConversation()
	conversation.Title = ""
	mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(input service.CreateConversationInput) bool {
		return input.Title == ""
	})).Return(conversation, nil)

	req := requestWithWorkspaceID(http.MethodPost, "/conversations", []byte(`{}`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_Ask_Success(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	now := time.Now().UTC()
	output := &service.AskOutput{
		UserMessage: &domain.Message{
			ID: "msg-1", ConversationID: "conv-123", Role: domain.MessageRoleUser,
			Content: "How do I rotate keys?", CreatedAt: now,
		},
		AssistantMessage: &domain.Message{
			ID: "msg-2", ConversationID: "conv-123", Role: domain.MessageRoleAssistant,
			Content: "Rotate them quarterly.", CreatedAt: now,
		},
		Sources: []*service.SearchResult{
			{ID: "item-1", Title: "Key rotation runbook", Type: domain.ItemTypeDocument, Score: 0.9},
		},
	}
	mockSvc.On("Ask", mock.Anything, service.AskInput{
		ConversationID: "conv-123",
		Content:        "How do I rotate keys?",
	}).Return(output, nil)

	body := `{"content":"How do I rotate keys?"}`
	req := withURLParam(requestWithWorkspaceID(http.MethodPost, "/conversations/conv-123/messages", []byte(body)), "id", "conv-123")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assistant := data["assistant_message"].(map[string]interface{})
	assert.Equal(t, "Rotate them quarterly.", assistant["content"])
	sources := data["sources"].([]interface{})
	assert.Len(t, sources, 1)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_Ask_MissingContent(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	req := withURLParam(requestWithWorkspaceID(http.MethodPost, "/conversations/conv-123/messages", []byte(`{}`)), "id", "conv-123")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "content is required")
	mockSvc.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}

func TestConversationHandler_Ask_NotFound(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	mockSvc.On("Ask", mock.Anything, mock.Anything).Return(nil, domain.ErrConversationNotFound)

	body := `{"content":"hello"}`
	req := withURLParam(requestWithWorkspaceID(http.MethodPost, "/conversations/conv-999/messages", []byte(body)), "id", "conv-999")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationHandler_Messages_Success(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	now := time.Now().UTC()
	messages := []*domain.Message{
		{ID: "msg-1", ConversationID: "conv-123", Role: domain.MessageRoleUser, Content: "Hi", CreatedAt: now},
		{ID: "msg-2", ConversationID: "conv-123", Role: domain.MessageRoleAssistant, Content: "Hello", CreatedAt: now},
	}
	mockSvc.On("Messages", mock.Anything, "conv-123").Return(messages, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/conversations/conv-123/messages", nil), "id", "conv-123")
	w := httptest.NewRecorder()

	handler.Messages(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["messages"], 2)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_List_Success(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	output := &service.ListConversationsOutput{
		Conversations: []*domain.Conversation{newTestConversation()},
		HasMore:       false,
	}
	mockSvc.On("List", mock.Anything, mock.MatchedBy(func(input service.ListConversationsInput) bool {
		return input.WorkspaceID == "ws-456" && input.Limit == 20
	})).Return(output, nil)

	req := requestWithWorkspaceID(http.MethodGet, "/conversations", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_Delete_Success(t *testing.T) {
	mockSvc := new(MockConversationService)
	handler := NewConversationHandler(mockSvc)

	mockSvc.On("Delete", mock.Anything, "conv-123").Return(nil)

	req := withURLParam(requestWithWorkspaceID(http.MethodDelete, "/conversations/conv-123", nil), "id", "conv-123")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSvc.AssertExpectations(t)
}
