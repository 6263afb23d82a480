package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quill-labs/quillai/internal/api"
	"github.com/quill-labs/quillai/internal/api/middleware"
	"github.com/quill-labs/quillai/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float32 `json:"threshold,omitempty"`
	Mode      string  `json:"mode,omitempty"`
}

type SearchResultResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
	Type        string            `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Score       float32           `json:"score"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
	Count   int                     `json:"count"`
}

func searchResultToResponse(r *service.SearchResult) *SearchResultResponse {
	return &SearchResultResponse{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Snippet:     r.Content,
		Type:        string(r.Type),
		Metadata:    r.Metadata,
		Score:       r.Score,
	}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	input := service.SearchInput{
		Query:       req.Query,
		WorkspaceID: workspaceID,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		Mode:        service.SearchMode(req.Mode),
	}

	results, err := h.svc.Search(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(results))
	for i, result := range results {
		responses[i] = searchResultToResponse(result)
	}

	api.Success(w, http.StatusOK, SearchResponse{
		Results: responses,
		Count:   len(responses),
	})
}
