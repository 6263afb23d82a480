package domain

import (
	"fmt"
	"time"
)

// Workspace represents a tenant in the system
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NewWorkspace creates a new Workspace instance
func NewWorkspace(id, name string, createdAt time.Time) *Workspace {
	return &Workspace{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// ValidateWorkspace validates a Workspace instance
func ValidateWorkspace(w *Workspace) error {
	if w == nil {
		return fmt.Errorf("workspace cannot be nil")
	}

	if w.ID == "" {
		return fmt.Errorf("workspace ID is required")
	}

	if w.Name == "" {
		return fmt.Errorf("workspace Name is required")
	}

	return nil
}
