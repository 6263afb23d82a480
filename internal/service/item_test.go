package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestItemCreateDocumentWithEmbedding(t *testing.T) {
	itemRepo := new(MockItemRepository)
	jobRepo := new(MockEmbeddingJobRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, jobRepo, embedding)
	svc.uuidGen = NewMockUUIDGenerator("item-1")

	embedding.On("GenerateEmbedding", mock.Anything, "Runbook\n\nincident response steps").
		Return([]float32{0.1, 0.2}, nil)
	itemRepo.On("Create", mock.Anything, mock.MatchedBy(func(item *domain.Item) bool {
		return item.ID == "item-1" &&
			item.Type == domain.ItemTypeDocument &&
			len(item.Embedding) == 2
	})).Return(nil)

	item, err := svc.Create(context.Background(), CreateItemInput{
		WorkspaceID: "ws-1",
		Type:        domain.ItemTypeDocument,
		Title:       "Runbook",
		Content:     "incident response steps",
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, item.Embedding)

	itemRepo.AssertExpectations(t)
	// Embedding succeeded, so no backfill job is queued.
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemCreateQueuesJobOnEmbeddingFailure(t *testing.T) {
	itemRepo := new(MockItemRepository)
	jobRepo := new(MockEmbeddingJobRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, jobRepo, embedding)
	svc.uuidGen = NewMockUUIDGenerator("item-1", "job-1")

	embedding.On("GenerateEmbedding", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))
	itemRepo.On("Create", mock.Anything, mock.MatchedBy(func(item *domain.Item) bool {
		return item.Embedding == nil
	})).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(job *domain.EmbeddingJob) bool {
		return job.ID == "job-1" &&
			job.ItemID == "item-1" &&
			job.Status == domain.EmbeddingJobStatusPending
	})).Return(nil)

	item, err := svc.Create(context.Background(), CreateItemInput{
		WorkspaceID: "ws-1",
		Type:        domain.ItemTypeDocument,
		Title:       "Runbook",
		Content:     "incident response steps",
	})
	require.NoError(t, err)
	assert.Nil(t, item.Embedding)

	itemRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestItemCreateWithTxRunner(t *testing.T) {
	itemRepo := new(MockItemRepository)
	jobRepo := new(MockEmbeddingJobRepository)
	txItemRepo := new(MockItemRepository)
	txJobRepo := new(MockEmbeddingJobRepository)
	embedding := new(MockEmbeddingClient)

	runner := &fakeTxRunner{repos: &fakeTxRepositories{items: txItemRepo, jobs: txJobRepo}}
	svc := NewItemServiceWithTx(itemRepo, jobRepo, embedding, runner)
	svc.uuidGen = NewMockUUIDGenerator("item-1", "job-1")

	embedding.On("GenerateEmbedding", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))
	txItemRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	txJobRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Create(context.Background(), CreateItemInput{
		WorkspaceID: "ws-1",
		Type:        domain.ItemTypeDocument,
		Title:       "Runbook",
		Content:     "incident response steps",
	})
	require.NoError(t, err)

	// Item and job go through the transactional repos, not the plain ones.
	txItemRepo.AssertExpectations(t)
	txJobRepo.AssertExpectations(t)
	itemRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemCreateFolderSkipsEmbedding(t *testing.T) {
	itemRepo := new(MockItemRepository)
	jobRepo := new(MockEmbeddingJobRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, jobRepo, embedding)

	itemRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	item, err := svc.Create(context.Background(), CreateItemInput{
		WorkspaceID: "ws-1",
		Type:        domain.ItemTypeFolder,
		Title:       "Projects",
	})
	require.NoError(t, err)
	assert.Nil(t, item.Embedding)

	embedding.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemCreateValidation(t *testing.T) {
	svc := NewItemService(new(MockItemRepository), new(MockEmbeddingJobRepository), new(MockEmbeddingClient))

	tests := []struct {
		name  string
		input CreateItemInput
	}{
		{
			name:  "unknown type",
			input: CreateItemInput{WorkspaceID: "ws-1", Type: "spreadsheet", Title: "X"},
		},
		{
			name:  "document without content",
			input: CreateItemInput{WorkspaceID: "ws-1", Type: domain.ItemTypeDocument, Title: "X"},
		},
		{
			name:  "file without file url",
			input: CreateItemInput{WorkspaceID: "ws-1", Type: domain.ItemTypeFile, Title: "X"},
		},
		{
			name:  "url without file url",
			input: CreateItemInput{WorkspaceID: "ws-1", Type: domain.ItemTypeURL, Title: "X"},
		},
		{
			name:  "missing title",
			input: CreateItemInput{WorkspaceID: "ws-1", Type: domain.ItemTypeFolder},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			require.Error(t, err)
		})
	}
}

func TestItemUpdateReembedsOnContentChange(t *testing.T) {
	itemRepo := new(MockItemRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, new(MockEmbeddingJobRepository), embedding)

	existing := testItem("item-1", "Runbook", "old steps", []float32{0.5, 0.5})
	itemRepo.On("GetByID", mock.Anything, "item-1").Return(existing, nil)
	embedding.On("GenerateEmbedding", mock.Anything, "Runbook\n\nnew steps").
		Return([]float32{0.9, 0.1}, nil)
	itemRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	itemRepo.On("UpdateEmbedding", mock.Anything, "item-1", []float32{0.9, 0.1}).Return(nil)

	item, err := svc.Update(context.Background(), UpdateItemInput{
		ItemID:  "item-1",
		Title:   "Runbook",
		Content: "new steps",
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9, 0.1}, item.Embedding)

	itemRepo.AssertExpectations(t)
}

func TestItemUpdateUnchangedContentKeepsEmbedding(t *testing.T) {
	itemRepo := new(MockItemRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, new(MockEmbeddingJobRepository), embedding)

	existing := testItem("item-1", "Runbook", "same steps", []float32{0.5, 0.5})
	itemRepo.On("GetByID", mock.Anything, "item-1").Return(existing, nil)
	itemRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	item, err := svc.Update(context.Background(), UpdateItemInput{
		ItemID:  "item-1",
		Title:   "Renamed runbook",
		Content: "same steps",
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, item.Embedding)

	embedding.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	itemRepo.AssertNotCalled(t, "UpdateEmbedding", mock.Anything, mock.Anything, mock.Anything)
}

func TestItemUpdateQueuesJobOnEmbeddingFailure(t *testing.T) {
	itemRepo := new(MockItemRepository)
	jobRepo := new(MockEmbeddingJobRepository)
	embedding := new(MockEmbeddingClient)
	svc := NewItemService(itemRepo, jobRepo, embedding)
	svc.uuidGen = NewMockUUIDGenerator("job-1")

	existing := testItem("item-1", "Runbook", "old steps", []float32{0.5, 0.5})
	itemRepo.On("GetByID", mock.Anything, "item-1").Return(existing, nil)
	embedding.On("GenerateEmbedding", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))
	itemRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	itemRepo.On("ClearEmbedding", mock.Anything, "item-1").Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(job *domain.EmbeddingJob) bool {
		return job.ItemID == "item-1" && job.Status == domain.EmbeddingJobStatusPending
	})).Return(nil)

	item, err := svc.Update(context.Background(), UpdateItemInput{
		ItemID:  "item-1",
		Title:   "Runbook",
		Content: "new steps",
	})
	require.NoError(t, err)
	assert.Nil(t, item.Embedding)

	jobRepo.AssertExpectations(t)
}

func TestItemList(t *testing.T) {
	itemRepo := new(MockItemRepository)
	svc := NewItemService(itemRepo, nil, nil)

	now := time.Now().UTC()
	items := []*domain.Item{
		{ID: "item-1", WorkspaceID: "ws-1", Type: domain.ItemTypeFolder, Title: "A", CreatedAt: now, UpdatedAt: now},
	}
	itemRepo.On("ListByWorkspaceWithCursor", mock.Anything, "ws-1", mock.Anything, 20).
		Return(&ItemPageResult{Items: items, NextCursor: "next", HasMore: true}, nil)

	out, err := svc.List(context.Background(), ListItemsInput{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, "next", out.Cursor)
	assert.True(t, out.HasMore)
}

func TestItemListInvalidCursor(t *testing.T) {
	svc := NewItemService(new(MockItemRepository), nil, nil)

	_, err := svc.List(context.Background(), ListItemsInput{WorkspaceID: "ws-1", Cursor: "!!not-base64!!"})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestItemDelete(t *testing.T) {
	itemRepo := new(MockItemRepository)
	svc := NewItemService(itemRepo, nil, nil)

	itemRepo.On("Delete", mock.Anything, "item-1").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "item-1"))
	itemRepo.AssertExpectations(t)
}
