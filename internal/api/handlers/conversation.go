package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quill-labs/quillai/internal/api"
	"github.com/quill-labs/quillai/internal/api/middleware"
	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/service"
)

type ConversationService interface {
	Create(ctx context.Context, input service.CreateConversationInput) (*domain.Conversation, error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, input service.ListConversationsInput) (*service.ListConversationsOutput, error)
	Delete(ctx context.Context, id string) error
	Messages(ctx context.Context, conversationID string) ([]*domain.Message, error)
	Ask(ctx context.Context, input service.AskInput) (*service.AskOutput, error)
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
	Model string `json:"model,omitempty"`
}

type ConversationResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title,omitempty"`
	Model       string `json:"model,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

type AskRequest struct {
	Content string `json:"content"`
}

type AskResponse struct {
	UserMessage      *MessageResponse        `json:"user_message"`
	AssistantMessage *MessageResponse        `json:"assistant_message"`
	Sources          []*SearchResultResponse `json:"sources,omitempty"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		Title:       c.Title,
		Model:       c.Model,
		CreatedAt:   c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   c.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.CreateConversationInput{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Model:       req.Model,
	}

	conversation, err := h.svc.Create(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conversationToResponse(conversation))
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	conversation, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conversationToResponse(conversation))
}

type ConversationListResponse struct {
	Conversations []*ConversationResponse `json:"conversations"`
	Cursor        string                  `json:"cursor,omitempty"`
	HasMore       bool                    `json:"has_more"`
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	input := service.ListConversationsInput{
		WorkspaceID: workspaceID,
		Cursor:      cursor,
		Limit:       limit,
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ConversationResponse, len(output.Conversations))
	for i, c := range output.Conversations {
		responses[i] = conversationToResponse(c)
	}

	api.Success(w, http.StatusOK, ConversationListResponse{
		Conversations: responses,
		Cursor:        output.Cursor,
		HasMore:       output.HasMore,
	})
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	messages, err := h.svc.Messages(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = messageToResponse(m)
	}

	api.Success(w, http.StatusOK, MessageListResponse{Messages: responses})
}

func (h *ConversationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	output, err := h.svc.Ask(r.Context(), service.AskInput{
		ConversationID: id,
		Content:        req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sources := make([]*SearchResultResponse, len(output.Sources))
	for i, source := range output.Sources {
		sources[i] = searchResultToResponse(source)
	}

	api.Success(w, http.StatusOK, AskResponse{
		UserMessage:      messageToResponse(output.UserMessage),
		AssistantMessage: messageToResponse(output.AssistantMessage),
		Sources:          sources,
	})
}
