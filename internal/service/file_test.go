package service

import (
	"context"
	"errors"
	"testing"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFileServiceForTest(storage *MockStorageClient, itemRepo *MockItemRepository, embedding *MockEmbeddingClient) *FileService {
	items := NewItemService(itemRepo, nil, embedding)
	items.uuidGen = NewMockUUIDGenerator("item-1")
	svc := NewFileService(storage, items)
	svc.uuidGen = NewMockUUIDGenerator("upload-1")
	return svc
}

func TestInitUpload(t *testing.T) {
	storage := new(MockStorageClient)
	svc := newFileServiceForTest(storage, new(MockItemRepository), new(MockEmbeddingClient))

	storage.On("GenerateUploadURL", mock.Anything, "ws-1/upload-1/report.pdf", "application/pdf").
		Return("https://storage.example.com/presigned", nil)

	result, err := svc.InitUpload(context.Background(), InitUploadInput{
		WorkspaceID: "ws-1",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "upload-1", result.UploadID)
	assert.Equal(t, "ws-1/upload-1/report.pdf", result.StorageKey)
	assert.Equal(t, "https://storage.example.com/presigned", result.UploadURL)
}

func TestInitUploadValidation(t *testing.T) {
	svc := newFileServiceForTest(new(MockStorageClient), new(MockItemRepository), new(MockEmbeddingClient))

	_, err := svc.InitUpload(context.Background(), InitUploadInput{Filename: "report.pdf"})
	require.Error(t, err)

	_, err = svc.InitUpload(context.Background(), InitUploadInput{WorkspaceID: "ws-1"})
	require.Error(t, err)
}

func TestCompleteUploadCreatesFileItem(t *testing.T) {
	storage := new(MockStorageClient)
	itemRepo := new(MockItemRepository)
	embedding := new(MockEmbeddingClient)
	svc := newFileServiceForTest(storage, itemRepo, embedding)

	storage.On("HeadObject", mock.Anything, "ws-1/upload-1/report.pdf").
		Return(&ObjectMetadata{ContentLength: 1024, ContentType: "application/pdf"}, nil)
	embedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	itemRepo.On("Create", mock.Anything, mock.MatchedBy(func(item *domain.Item) bool {
		return item.Type == domain.ItemTypeFile && item.FileURL == "ws-1/upload-1/report.pdf"
	})).Return(nil)

	item, err := svc.CompleteUpload(context.Background(), CompleteUploadInput{
		WorkspaceID: "ws-1",
		StorageKey:  "ws-1/upload-1/report.pdf",
		Title:       "Quarterly report",
		Content:     "extracted text from the pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemTypeFile, item.Type)

	itemRepo.AssertExpectations(t)
}

func TestCompleteUploadMissingObject(t *testing.T) {
	storage := new(MockStorageClient)
	itemRepo := new(MockItemRepository)
	svc := newFileServiceForTest(storage, itemRepo, new(MockEmbeddingClient))

	storage.On("HeadObject", mock.Anything, "ws-1/upload-1/report.pdf").
		Return(nil, errors.New("not found"))

	_, err := svc.CompleteUpload(context.Background(), CompleteUploadInput{
		WorkspaceID: "ws-1",
		StorageKey:  "ws-1/upload-1/report.pdf",
		Title:       "Quarterly report",
	})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeNotFound, domainErr.Code)
	itemRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGetDownloadURL(t *testing.T) {
	storage := new(MockStorageClient)
	itemRepo := new(MockItemRepository)
	svc := newFileServiceForTest(storage, itemRepo, new(MockEmbeddingClient))

	fileItem := testItem("item-1", "Report", "", nil)
	fileItem.Type = domain.ItemTypeFile
	fileItem.FileURL = "ws-1/upload-1/report.pdf"
	itemRepo.On("GetByID", mock.Anything, "item-1").Return(fileItem, nil)
	storage.On("GenerateDownloadURL", mock.Anything, "ws-1/upload-1/report.pdf").
		Return("https://storage.example.com/download", nil)

	url, err := svc.GetDownloadURL(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/download", url)
}

func TestGetDownloadURLRejectsNonFile(t *testing.T) {
	storage := new(MockStorageClient)
	itemRepo := new(MockItemRepository)
	svc := newFileServiceForTest(storage, itemRepo, new(MockEmbeddingClient))

	itemRepo.On("GetByID", mock.Anything, "item-1").Return(testItem("item-1", "Doc", "text", nil), nil)

	_, err := svc.GetDownloadURL(context.Background(), "item-1")
	require.Error(t, err)
	storage.AssertNotCalled(t, "GenerateDownloadURL", mock.Anything, mock.Anything)
}

func TestFileDelete(t *testing.T) {
	storage := new(MockStorageClient)
	itemRepo := new(MockItemRepository)
	svc := newFileServiceForTest(storage, itemRepo, new(MockEmbeddingClient))

	fileItem := testItem("item-1", "Report", "", nil)
	fileItem.Type = domain.ItemTypeFile
	fileItem.FileURL = "ws-1/upload-1/report.pdf"
	itemRepo.On("GetByID", mock.Anything, "item-1").Return(fileItem, nil)
	storage.On("DeleteObject", mock.Anything, "ws-1/upload-1/report.pdf").Return(nil)
	itemRepo.On("Delete", mock.Anything, "item-1").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "item-1"))
	storage.AssertExpectations(t)
	itemRepo.AssertExpectations(t)
}
