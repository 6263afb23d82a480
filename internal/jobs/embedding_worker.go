package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/quill-labs/quillai/internal/domain"
)

const (
	// MaxRetries is how many attempts a job gets before it is marked failed.
	MaxRetries = 3

	// claimBatchSize bounds how many jobs one poll cycle claims.
	claimBatchSize = 100
)

// EmbeddingJobRepository is the queue the worker drains.
type EmbeddingJobRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)
	UpdateStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, jobID string) error
}

// EmbeddingService computes and stores the embedding for one item.
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, itemID string) error
}

// EmbeddingWorker backfills embeddings for items whose synchronous embedding
// attempt failed at create or update time.
type EmbeddingWorker struct {
	repo    EmbeddingJobRepository
	service EmbeddingService
}

func NewEmbeddingWorker(repo EmbeddingJobRepository, service EmbeddingService) *EmbeddingWorker {
	return &EmbeddingWorker{repo: repo, service: service}
}

// ProcessJobs claims a batch of pending jobs and works through them. A
// single failing job does not stop the batch.
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	log.Printf("embedding worker: claimed %d pending jobs", len(jobs))
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("embedding worker: job %s: %v", job.ID, err)
		}
	}
	return nil
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	if err := w.service.GenerateEmbedding(ctx, job.ItemID); err != nil {
		return w.retryOrFail(ctx, job, err)
	}
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	return nil
}

// retryOrFail puts a failed job back in the queue, or marks it failed once
// its attempts are spent.
func (w *EmbeddingWorker) retryOrFail(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := job.Retries + 1
	if attempt >= MaxRetries {
		log.Printf("embedding worker: job %s out of retries, marking failed", job.ID)
		msg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, msg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	// Back to pending so the next poll cycle picks it up again.
	log.Printf("embedding worker: job %s will be retried (attempt %d/%d)", job.ID, attempt, MaxRetries)
	msg := fmt.Sprintf("retry %d: %v", attempt, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, msg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	return nil
}
