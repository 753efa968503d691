package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// BatchExecutor sends several statements in a single round-trip inside the
// transaction from context.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// Exec runs stmts in order. The first failing statement aborts the batch.
func (e *BatchExecutor) Exec(ctx context.Context, stmts ...squirrel.Sqlizer) error {
	tx := e.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch exec requires transaction context")
	}

	batch, err := buildBatch(stmts)
	if err != nil {
		return err
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range stmts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d failed: %w", i, err)
		}
	}
	return nil
}

func buildBatch(stmts []squirrel.Sqlizer) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for i, stmt := range stmts {
		sql, args, err := stmt.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build batch statement %d: %w", i, err)
		}
		batch.Queue(sql, args...)
	}
	return batch, nil
}
