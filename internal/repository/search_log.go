package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill-labs/quillai/internal/service"
)

// SearchLogRepository persists one row per executed search so relevance can
// be evaluated offline from real queries.
type SearchLogRepository struct {
	pool *pgxpool.Pool
}

func NewSearchLogRepository(pool *pgxpool.Pool) *SearchLogRepository {
	return &SearchLogRepository{pool: pool}
}

// CreateSearchLog inserts the entry and returns its id. Results are stored
// as a JSON snapshot of what the caller was shown.
func (r *SearchLogRepository) CreateSearchLog(ctx context.Context, entry service.SearchLogEntry) (string, error) {
	snapshot, _ := json.Marshal(entry.Results)

	const q = `INSERT INTO search_logs (workspace_id, query, mode, request_limit, results, result_count, duration_ms)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)
	           RETURNING id`

	var id string
	err := r.pool.QueryRow(ctx, q,
		entry.WorkspaceID, entry.Query, string(entry.Mode), entry.Limit,
		snapshot, len(entry.Results), entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
