package domain

import "time"

// EmbeddingJobStatus is the lifecycle state of a deferred embedding job.
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s EmbeddingJobStatus) Valid() bool {
	switch s {
	case EmbeddingJobStatusPending, EmbeddingJobStatusProcessing,
		EmbeddingJobStatusCompleted, EmbeddingJobStatusFailed:
		return true
	}
	return false
}

// EmbeddingJob records an item whose embedding could not be computed
// synchronously at create or update time. The background worker retries
// these until they complete or exhaust their attempts.
type EmbeddingJob struct {
	ID          string
	ItemID      string
	Status      EmbeddingJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
