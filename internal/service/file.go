package service

import (
	"context"
	"fmt"

	"github.com/quill-labs/quillai/internal/domain"
)

// StorageClientInterface is the object storage surface the file service needs
type StorageClientInterface interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

// ObjectMetadata describes a stored object
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// FileService handles uploads backing file items. Clients upload directly to
// object storage through presigned URLs; the item record is created once the
// upload is confirmed.
type FileService struct {
	storage StorageClientInterface
	items   *ItemService
	uuidGen UUIDGenerator
}

// NewFileService creates a new FileService instance
func NewFileService(storage StorageClientInterface, items *ItemService) *FileService {
	return &FileService{
		storage: storage,
		items:   items,
		uuidGen: &DefaultUUIDGenerator{},
	}
}

// InitUploadInput represents input for initiating a file upload
type InitUploadInput struct {
	WorkspaceID string
	Filename    string
	ContentType string
}

// InitUploadResult carries the presigned URL a client uploads to
type InitUploadResult struct {
	UploadID   string
	StorageKey string
	UploadURL  string
}

// InitUpload issues a presigned upload URL. Nothing is persisted until the
// client confirms the upload with CompleteUpload.
func (s *FileService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	if input.WorkspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	if input.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}

	uploadID := s.uuidGen.NewString()
	storageKey := buildStorageKey(input.WorkspaceID, uploadID, input.Filename)

	uploadURL, err := s.storage.GenerateUploadURL(ctx, storageKey, input.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return &InitUploadResult{
		UploadID:   uploadID,
		StorageKey: storageKey,
		UploadURL:  uploadURL,
	}, nil
}

// CompleteUploadInput represents input for confirming a file upload
type CompleteUploadInput struct {
	WorkspaceID string
	StorageKey  string
	Title       string
	Description string
	Content     string
}

// CompleteUpload verifies the object exists and creates the file item
// pointing at it. Extracted text, when the caller supplies it, is stored as
// content so the item participates in semantic search.
func (s *FileService) CompleteUpload(ctx context.Context, input CompleteUploadInput) (*domain.Item, error) {
	if _, err := s.storage.HeadObject(ctx, input.StorageKey); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "pending file upload not found", err)
	}

	return s.items.Create(ctx, CreateItemInput{
		WorkspaceID: input.WorkspaceID,
		Type:        domain.ItemTypeFile,
		Title:       input.Title,
		Description: input.Description,
		Content:     input.Content,
		FileURL:     input.StorageKey,
	})
}

// GetDownloadURL returns a presigned download URL for a file item.
func (s *FileService) GetDownloadURL(ctx context.Context, itemID string) (string, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item.Type != domain.ItemTypeFile {
		return "", domain.NewDomainError(domain.ErrCodeInvalidOperation, "item is not a file")
	}

	url, err := s.storage.GenerateDownloadURL(ctx, item.FileURL)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return url, nil
}

// Delete removes the stored object and then the item record.
func (s *FileService) Delete(ctx context.Context, itemID string) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Type != domain.ItemTypeFile {
		return domain.NewDomainError(domain.ErrCodeInvalidOperation, "item is not a file")
	}

	if err := s.storage.DeleteObject(ctx, item.FileURL); err != nil {
		return fmt.Errorf("failed to delete from storage: %w", err)
	}
	return s.items.Delete(ctx, itemID)
}

func buildStorageKey(workspaceID, uploadID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", workspaceID, uploadID, filename)
}
