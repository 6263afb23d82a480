package service

import "context"

// TxRepositories hands out repository views that all share one open
// transaction. Item writes and their embedding jobs go through this so a
// failed enqueue never leaves an item without a pending job.
type TxRepositories interface {
	Items() ItemRepositoryInterface
	EmbeddingJobs() EmbeddingJobRepositoryInterface
}

// TxRunner executes fn transactionally: commit on nil, rollback on error.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
