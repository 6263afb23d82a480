package repository

import (
	"context"
	"errors"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkspaceRepository struct {
	db dbtx
}

func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{db: pool}
}

func (r *WorkspaceRepository) Create(ctx context.Context, workspace *domain.Workspace) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES ($1, $2, $3)`,
		workspace.ID, workspace.Name, workspace.CreatedAt,
	)
	return err
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	var w domain.Workspace
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM workspaces WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.Name, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WorkspaceRepository) GetByName(ctx context.Context, name string) (*domain.Workspace, error) {
	var w domain.Workspace
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM workspaces WHERE name = $1`,
		name,
	).Scan(&w.ID, &w.Name, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, created_at FROM workspaces ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []*domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, &w)
	}
	return workspaces, rows.Err()
}

func (r *WorkspaceRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM workspaces WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}
