package service

import "context"

// SearchLogResult is the minimal per-result record kept for evaluation:
// which item ranked and with what score.
type SearchLogResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// SearchLogEntry is one executed search, recorded asynchronously after the
// response is sent.
type SearchLogEntry struct {
	WorkspaceID string
	Query       string
	Mode        SearchMode
	Limit       int
	DurationMs  int
	Results     []SearchLogResult
}

// SearchLogRepository persists search log entries.
type SearchLogRepository interface {
	CreateSearchLog(ctx context.Context, entry SearchLogEntry) (string, error)
}
