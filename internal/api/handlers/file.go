package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quill-labs/quillai/internal/api"
	"github.com/quill-labs/quillai/internal/api/middleware"
	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/service"
)

type FileService interface {
	InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error)
	CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Item, error)
	GetDownloadURL(ctx context.Context, itemID string) (string, error)
	Delete(ctx context.Context, itemID string) error
}

type FileHandler struct {
	svc FileService
}

func NewFileHandler(svc FileService) *FileHandler {
	return &FileHandler{svc: svc}
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type InitUploadResponse struct {
	UploadID   string `json:"upload_id"`
	StorageKey string `json:"storage_key"`
	UploadURL  string `json:"upload_url"`
}

type CompleteUploadRequest struct {
	StorageKey  string `json:"storage_key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

func (h *FileHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.svc.InitUpload(r.Context(), service.InitUploadInput{
		WorkspaceID: workspaceID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, InitUploadResponse{
		UploadID:   result.UploadID,
		StorageKey: result.StorageKey,
		UploadURL:  result.UploadURL,
	})
}

func (h *FileHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.StorageKey == "" {
		api.Error(w, http.StatusBadRequest, "storage_key is required")
		return
	}
	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	item, err := h.svc.CompleteUpload(r.Context(), service.CompleteUploadInput{
		WorkspaceID: workspaceID,
		StorageKey:  req.StorageKey,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, itemToResponse(item))
}

func (h *FileHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.GetDownloadURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{DownloadURL: url})
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
