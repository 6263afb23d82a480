package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quill-labs/quillai/internal/api"
	"github.com/quill-labs/quillai/internal/domain"
)

type AuthService interface {
	CreateWorkspace(ctx context.Context, name string) (*domain.Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error)
	CreateAPIKey(ctx context.Context, workspaceID, name string) (string, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
	ListAPIKeys(ctx context.Context, workspaceID string) ([]*domain.APIKey, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

type CreateAPIKeyResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type APIKeyResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at"`
	RevokedAt   string `json:"revoked_at,omitempty"`
}

func workspaceToResponse(ws *domain.Workspace) *WorkspaceResponse {
	return &WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func apiKeyToResponse(key *domain.APIKey) *APIKeyResponse {
	resp := &APIKeyResponse{
		ID:          key.ID,
		WorkspaceID: key.WorkspaceID,
		Name:        key.Name,
		CreatedAt:   key.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if key.RevokedAt != nil {
		resp.RevokedAt = key.RevokedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (h *AuthHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	workspace, err := h.svc.CreateWorkspace(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, workspaceToResponse(workspace))
}

func (h *AuthHandler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	workspace, err := h.svc.GetWorkspace(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, workspaceToResponse(workspace))
}

type WorkspaceListResponse struct {
	Workspaces []*WorkspaceResponse `json:"workspaces"`
}

func (h *AuthHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.svc.ListWorkspaces(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*WorkspaceResponse, len(workspaces))
	for i, ws := range workspaces {
		responses[i] = workspaceToResponse(ws)
	}

	api.Success(w, http.StatusOK, WorkspaceListResponse{Workspaces: responses})
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WorkspaceID == "" {
		api.Error(w, http.StatusBadRequest, "workspace_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	token, err := h.svc.CreateAPIKey(r.Context(), req.WorkspaceID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// The plaintext token is returned exactly once. Only its hash is stored.
	api.Success(w, http.StatusCreated, CreateAPIKeyResponse{
		Token: token,
		Name:  req.Name,
	})
}

func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

type APIKeyListResponse struct {
	Keys []*APIKeyResponse `json:"keys"`
}

func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if workspaceID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), workspaceID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = apiKeyToResponse(key)
	}

	api.Success(w, http.StatusOK, APIKeyListResponse{Keys: responses})
}
