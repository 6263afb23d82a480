package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/pagination"
	"github.com/quill-labs/quillai/internal/telemetry"
	"github.com/google/uuid"
)

// ItemRepositoryInterface defines the repository interface for item persistence
type ItemRepositoryInterface interface {
	Create(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	ListByWorkspaceWithCursor(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*ItemPageResult, error)
	Update(ctx context.Context, item *domain.Item) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	ClearEmbedding(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ItemPageResult is one page of items plus the cursor for the next page.
type ItemPageResult struct {
	Items      []*domain.Item
	NextCursor string
	HasMore    bool
}

// EmbeddingJobRepositoryInterface defines the repository interface for embedding job persistence
type EmbeddingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// ItemService handles business logic for knowledge items. Embeddings are
// computed synchronously at create/update time; when the provider is
// unavailable the item is stored without an embedding and a job is queued for
// the background worker.
type ItemService struct {
	itemRepo  ItemRepositoryInterface
	jobRepo   EmbeddingJobRepositoryInterface
	embedding EmbeddingClient
	uuidGen   UUIDGenerator
	txRunner  TxRunner
}

// NewItemService creates a new ItemService instance
func NewItemService(itemRepo ItemRepositoryInterface, jobRepo EmbeddingJobRepositoryInterface, embedding EmbeddingClient) *ItemService {
	return &ItemService{
		itemRepo:  itemRepo,
		jobRepo:   jobRepo,
		embedding: embedding,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// NewItemServiceWithTx creates an ItemService that writes item and embedding
// job in one transaction.
func NewItemServiceWithTx(itemRepo ItemRepositoryInterface, jobRepo EmbeddingJobRepositoryInterface, embedding EmbeddingClient, txRunner TxRunner) *ItemService {
	svc := NewItemService(itemRepo, jobRepo, embedding)
	svc.txRunner = txRunner
	return svc
}

// CreateItemInput represents input for creating an item
type CreateItemInput struct {
	WorkspaceID string
	Type        domain.ItemType
	Title       string
	Description string
	Content     string
	FileURL     string
	Metadata    map[string]string
}

// Create constructs, validates, and persists a new item.
func (s *ItemService) Create(ctx context.Context, input CreateItemInput) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "ItemService.Create", telemetry.SpanAttributes{
		WorkspaceID: input.WorkspaceID,
		Operation:   "create",
	})
	defer span.End()

	item, err := buildItem(s.uuidGen.NewString(), input, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if len(input.Metadata) > 0 {
		item.Metadata = input.Metadata
	}

	if err := domain.ValidateItem(item); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid item", err)
	}

	needJob := s.embedItem(ctx, item)

	if err := s.persistNew(ctx, item, needJob); err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateItemInput represents input for updating an item
type UpdateItemInput struct {
	ItemID      string
	Title       string
	Description string
	Content     string
	FileURL     string
	Metadata    map[string]string
}

// Update applies changes to an existing item. The embedding is recomputed
// whenever the content changes, and cleared when the content is removed.
func (s *ItemService) Update(ctx context.Context, input UpdateItemInput) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "ItemService.Update", telemetry.SpanAttributes{
		ItemID:    input.ItemID,
		Operation: "update",
	})
	defer span.End()

	item, err := s.itemRepo.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	contentChanged := item.Content != input.Content

	item.Title = input.Title
	item.Description = input.Description
	item.Content = input.Content
	if input.FileURL != "" {
		item.FileURL = input.FileURL
	}
	if input.Metadata != nil {
		item.Metadata = input.Metadata
	}
	item.UpdatedAt = time.Now().UTC()

	if err := domain.ValidateItem(item); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid item", err)
	}

	needJob := false
	if contentChanged {
		item.Embedding = nil
		if item.HasEmbeddableText() {
			needJob = s.embedItem(ctx, item)
		}
	}

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, err
	}

	if contentChanged {
		if item.Embedding != nil {
			if err := s.itemRepo.UpdateEmbedding(ctx, item.ID, item.Embedding); err != nil {
				return nil, fmt.Errorf("failed to update embedding: %w", err)
			}
		} else {
			if err := s.itemRepo.ClearEmbedding(ctx, item.ID); err != nil {
				return nil, fmt.Errorf("failed to clear embedding: %w", err)
			}
			if needJob {
				if err := s.queueEmbeddingJob(ctx, s.jobRepo, item.ID); err != nil {
					return nil, err
				}
			}
		}
	}

	return item, nil
}

// GetByID returns a single item by ID.
func (s *ItemService) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	return s.itemRepo.GetByID(ctx, id)
}

// Delete removes an item permanently.
func (s *ItemService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "ItemService.Delete", telemetry.SpanAttributes{
		ItemID:    id,
		Operation: "delete",
	})
	defer span.End()

	return s.itemRepo.Delete(ctx, id)
}

// ListItemsInput represents input for listing items
type ListItemsInput struct {
	WorkspaceID string
	Cursor      string
	Limit       int
}

// ListItemsOutput represents one page of items
type ListItemsOutput struct {
	Items   []*domain.Item
	Cursor  string
	HasMore bool
}

// List returns a page of items for a workspace.
func (s *ItemService) List(ctx context.Context, input ListItemsInput) (*ListItemsOutput, error) {
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	page, err := s.itemRepo.ListByWorkspaceWithCursor(ctx, input.WorkspaceID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListItemsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// embedItem tries to embed the item's text in-line. Returns true when the
// attempt failed and a backfill job should be queued. A missing provider or a
// failed call never blocks the write.
func (s *ItemService) embedItem(ctx context.Context, item *domain.Item) bool {
	if !item.HasEmbeddableText() {
		return false
	}
	if s.embedding == nil {
		return false
	}

	embedding, err := s.embedding.GenerateEmbedding(ctx, BuildEmbeddingText(item))
	if err != nil {
		log.Printf("item %s: synchronous embedding failed, queueing backfill: %v", item.ID, err)
		telemetry.CaptureError(ctx, err)
		return true
	}

	item.Embedding = embedding
	return false
}

func (s *ItemService) persistNew(ctx context.Context, item *domain.Item, needJob bool) error {
	if s.txRunner != nil {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Items().Create(ctx, item); err != nil {
				return fmt.Errorf("failed to create item: %w", err)
			}
			if needJob {
				return s.queueEmbeddingJob(ctx, repos.EmbeddingJobs(), item.ID)
			}
			return nil
		})
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	if needJob {
		return s.queueEmbeddingJob(ctx, s.jobRepo, item.ID)
	}
	return nil
}

func (s *ItemService) queueEmbeddingJob(ctx context.Context, repo EmbeddingJobRepositoryInterface, itemID string) error {
	if repo == nil {
		return nil
	}

	job := &domain.EmbeddingJob{
		ID:        s.uuidGen.NewString(),
		ItemID:    itemID,
		Status:    domain.EmbeddingJobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create embedding job: %w", err)
	}
	return nil
}

func buildItem(id string, input CreateItemInput, now time.Time) (*domain.Item, error) {
	switch input.Type {
	case domain.ItemTypeFolder:
		return domain.NewFolderItem(id, input.WorkspaceID, input.Title, now), nil
	case domain.ItemTypeDocument:
		return domain.NewDocumentItem(id, input.WorkspaceID, input.Title, input.Description, input.Content, now), nil
	case domain.ItemTypeFile:
		return domain.NewFileItem(id, input.WorkspaceID, input.Title, input.Description, input.FileURL, now), nil
	case domain.ItemTypeURL:
		return domain.NewURLItem(id, input.WorkspaceID, input.Title, input.Description, input.FileURL, now), nil
	case domain.ItemTypeURLDirectory:
		return domain.NewURLDirectoryItem(id, input.WorkspaceID, input.Title, now), nil
	default:
		return nil, domain.ErrInvalidItemType
	}
}
