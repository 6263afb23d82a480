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

type ItemService interface {
	Create(ctx context.Context, input service.CreateItemInput) (*domain.Item, error)
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	Update(ctx context.Context, input service.UpdateItemInput) (*domain.Item, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, input service.ListItemsInput) (*service.ListItemsOutput, error)
}

type ItemHandler struct {
	svc ItemService
}

func NewItemHandler(svc ItemService) *ItemHandler {
	return &ItemHandler{svc: svc}
}

type CreateItemRequest struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content,omitempty"`
	FileURL     string            `json:"file_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type UpdateItemRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content,omitempty"`
	FileURL     string            `json:"file_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ItemResponse struct {
	ID           string            `json:"id"`
	WorkspaceID  string            `json:"workspace_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Content      string            `json:"content,omitempty"`
	FileURL      string            `json:"file_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	HasEmbedding bool              `json:"has_embedding"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
}

func itemToResponse(item *domain.Item) *ItemResponse {
	return &ItemResponse{
		ID:           item.ID,
		WorkspaceID:  item.WorkspaceID,
		Type:         string(item.Type),
		Title:        item.Title,
		Description:  item.Description,
		Content:      item.Content,
		FileURL:      item.FileURL,
		Metadata:     item.Metadata,
		HasEmbedding: len(item.Embedding) > 0,
		CreatedAt:    item.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    item.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" {
		api.Error(w, http.StatusBadRequest, "type is required")
		return
	}
	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	itemType := domain.ItemType(req.Type)
	if !domain.IsValidItemType(itemType) {
		api.Error(w, http.StatusBadRequest, "invalid item type")
		return
	}

	input := service.CreateItemInput{
		WorkspaceID: workspaceID,
		Type:        itemType,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		FileURL:     req.FileURL,
		Metadata:    req.Metadata,
	}

	item, err := h.svc.Create(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, itemToResponse(item))
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	input := service.UpdateItemInput{
		ItemID:      id,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		FileURL:     req.FileURL,
		Metadata:    req.Metadata,
	}

	item, err := h.svc.Update(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

type ItemListResponse struct {
	Items   []*ItemResponse `json:"items"`
	Cursor  string          `json:"cursor,omitempty"`
	HasMore bool            `json:"has_more"`
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
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

	input := service.ListItemsInput{
		WorkspaceID: workspaceID,
		Cursor:      cursor,
		Limit:       limit,
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ItemResponse, len(output.Items))
	for i, item := range output.Items {
		responses[i] = itemToResponse(item)
	}

	api.Success(w, http.StatusOK, ItemListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
