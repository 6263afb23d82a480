package domain

import (
	"fmt"
	"time"
)

// ItemType represents the type of a knowledge item
type ItemType string

const (
	ItemTypeFolder       ItemType = "folder"
	ItemTypeDocument     ItemType = "document"
	ItemTypeFile         ItemType = "file"
	ItemTypeURL          ItemType = "url"
	ItemTypeURLDirectory ItemType = "url_directory"
)

// Item represents a knowledge item in the system.
// Field requirements depend on Type: documents carry Content, file and url
// items carry FileURL. Use the typed constructors so those requirements are
// checked at construction time.
type Item struct {
	ID          string
	WorkspaceID string
	Type        ItemType
	Title       string
	Description string
	Content     string
	FileURL     string
	Metadata    map[string]string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewFolderItem creates a folder item.
func NewFolderItem(id, workspaceID, title string, now time.Time) *Item {
	return newItem(id, workspaceID, ItemTypeFolder, title, now)
}

// NewDocumentItem creates a document item. Content is required.
func NewDocumentItem(id, workspaceID, title, description, content string, now time.Time) *Item {
	item := newItem(id, workspaceID, ItemTypeDocument, title, now)
	item.Description = description
	item.Content = content
	return item
}

// NewFileItem creates a file item pointing to an uploaded object.
func NewFileItem(id, workspaceID, title, description, fileURL string, now time.Time) *Item {
	item := newItem(id, workspaceID, ItemTypeFile, title, now)
	item.Description = description
	item.FileURL = fileURL
	return item
}

// NewURLItem creates a url item pointing to an external page.
func NewURLItem(id, workspaceID, title, description, fileURL string, now time.Time) *Item {
	item := newItem(id, workspaceID, ItemTypeURL, title, now)
	item.Description = description
	item.FileURL = fileURL
	return item
}

// NewURLDirectoryItem creates a url_directory item grouping crawled pages.
func NewURLDirectoryItem(id, workspaceID, title string, now time.Time) *Item {
	return newItem(id, workspaceID, ItemTypeURLDirectory, title, now)
}

func newItem(id, workspaceID string, itemType ItemType, title string, now time.Time) *Item {
	return &Item{
		ID:          id,
		WorkspaceID: workspaceID,
		Type:        itemType,
		Title:       title,
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidateItem validates an Item instance, including the per-type field rules.
func ValidateItem(i *Item) error {
	if i == nil {
		return fmt.Errorf("item cannot be nil")
	}

	if i.ID == "" {
		return fmt.Errorf("item ID is required")
	}

	if i.WorkspaceID == "" {
		return fmt.Errorf("item WorkspaceID is required")
	}

	if i.Title == "" {
		return fmt.Errorf("item Title is required")
	}

	switch i.Type {
	case ItemTypeFolder, ItemTypeURLDirectory:
		// No extra fields required.
	case ItemTypeDocument:
		if i.Content == "" {
			return fmt.Errorf("item Content is required for type %s", i.Type)
		}
	case ItemTypeFile, ItemTypeURL:
		if i.FileURL == "" {
			return fmt.Errorf("item FileURL is required for type %s", i.Type)
		}
	default:
		return fmt.Errorf("item Type is invalid: %s", i.Type)
	}

	return nil
}

// IsValidItemType checks if an ItemType is one of the known variants.
func IsValidItemType(t ItemType) bool {
	switch t {
	case ItemTypeFolder, ItemTypeDocument, ItemTypeFile, ItemTypeURL, ItemTypeURLDirectory:
		return true
	}
	return false
}

// HasEmbeddableText reports whether the item carries content that can be
// embedded. Only items with content participate in semantic search.
func (i *Item) HasEmbeddableText() bool {
	return i.Content != ""
}
