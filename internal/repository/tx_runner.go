package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill-labs/quillai/internal/service"
)

// TxRunner runs service callbacks inside a single pgx transaction, handing
// them repository views bound to that transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx begins a transaction, invokes fn with transaction-scoped
// repositories, and commits. Any error from fn rolls the transaction back.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txRepos{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// txRepos satisfies service.TxRepositories over one open transaction.
type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Items() service.ItemRepositoryInterface {
	return NewItemRepositoryWithTx(r.tx)
}

func (r *txRepos) EmbeddingJobs() service.EmbeddingJobRepositoryInterface {
	return NewEmbeddingJobRepositoryWithTx(r.tx)
}
