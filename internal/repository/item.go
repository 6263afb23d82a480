package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/pagination"
	"github.com/quill-labs/quillai/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const itemColumns = `id, workspace_id, type, title, description, content, file_url, metadata, created_at, updated_at`

type ItemRepository struct {
	db dbtx
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{db: pool}
}

func NewItemRepositoryWithTx(tx pgx.Tx) *ItemRepository {
	return &ItemRepository{db: tx}
}

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	metadata, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if item.Embedding != nil {
		v := pgvector.NewVector(item.Embedding)
		embedding = &v
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO items (id, workspace_id, type, title, description, content, file_url, metadata, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.WorkspaceID, item.Type, item.Title, item.Description, item.Content, nullableString(item.FileURL), metadata, embedding, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`,
		id,
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *ItemRepository) ListByWorkspaceWithCursor(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*service.ItemPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+itemColumns+`
			 FROM items
			 WHERE workspace_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			workspaceID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+itemColumns+`
			 FROM items
			 WHERE workspace_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			workspaceID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}

	return &service.ItemPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *ItemRepository) Update(ctx context.Context, item *domain.Item) error {
	metadata, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE items SET title = $1, description = $2, content = $3, file_url = $4, metadata = $5, updated_at = $6
		 WHERE id = $7`,
		item.Title, item.Description, item.Content, nullableString(item.FileURL), metadata, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE items SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) ClearEmbedding(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE items SET embedding = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM items WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// ListWithEmbeddings returns every item in the workspace that has an
// embedding, with the embedding loaded.
func (r *ItemRepository) ListWithEmbeddings(ctx context.Context, workspaceID string) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`, embedding
		 FROM items
		 WHERE workspace_id = $1 AND embedding IS NOT NULL`,
		workspaceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		var item domain.Item
		var fileURL *string
		var metadata []byte
		var embedding pgvector.Vector
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Type, &item.Title, &item.Description, &item.Content, &fileURL, &metadata, &item.CreatedAt, &item.UpdatedAt, &embedding); err != nil {
			return nil, err
		}
		if fileURL != nil {
			item.FileURL = *fileURL
		}
		if err := unmarshalMetadata(metadata, &item); err != nil {
			return nil, err
		}
		item.Embedding = embedding.Slice()
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SearchKeyword runs a full-text match over title, description, and content.
func (r *ItemRepository) SearchKeyword(ctx context.Context, query, workspaceID string, limit int) ([]*domain.Item, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM items
		 WHERE workspace_id = $1
		   AND search_tsv @@ plainto_tsquery('english', $2)
		 ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $2)) DESC
		 LIMIT $3`,
		workspaceID, query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanItemRows(rows)
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	var fileURL *string
	var metadata []byte
	if err := row.Scan(&item.ID, &item.WorkspaceID, &item.Type, &item.Title, &item.Description, &item.Content, &fileURL, &metadata, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if fileURL != nil {
		item.FileURL = *fileURL
	}
	if err := unmarshalMetadata(metadata, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanItemRows(rows pgx.Rows) ([]*domain.Item, error) {
	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

func unmarshalMetadata(raw []byte, item *domain.Item) error {
	if len(raw) == 0 {
		item.Metadata = map[string]string{}
		return nil
	}
	return json.Unmarshal(raw, &item.Metadata)
}
