package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/quill-labs/quillai/internal/domain"
)

// EmbeddingClient turns text into a vector.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingItemRepository is the slice of the item repository the embedding
// service needs: loading an item and writing its vector back.
type EmbeddingItemRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// EmbeddingService computes and persists item embeddings. The background
// worker drives it for items whose synchronous embedding attempt failed at
// create or update time.
type EmbeddingService struct {
	client EmbeddingClient
	repo   EmbeddingItemRepository
}

func NewEmbeddingService(client EmbeddingClient, repo EmbeddingItemRepository) *EmbeddingService {
	return &EmbeddingService{client: client, repo: repo}
}

// GenerateEmbedding embeds the item's text and stores the vector.
func (s *EmbeddingService) GenerateEmbedding(ctx context.Context, itemID string) error {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	if !item.HasEmbeddableText() {
		return fmt.Errorf("item %s has no content to embed", itemID)
	}

	embedding, err := s.client.GenerateEmbedding(ctx, BuildEmbeddingText(item))
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	if err := s.repo.UpdateEmbedding(ctx, itemID, embedding); err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}

	return nil
}

// BuildEmbeddingText joins the item's title, description and content into
// the text submitted to the embedding model. Empty fields are skipped.
func BuildEmbeddingText(item *domain.Item) string {
	parts := make([]string, 0, 3)
	for _, field := range []string{item.Title, item.Description, item.Content} {
		if field != "" {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, "\n\n")
}
