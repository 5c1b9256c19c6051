package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-relay/app/database"
)

const (
	DefaultPruneBatchSize   = database.MaxDeleteBatch
	DefaultPruneInitialWait = 50 * time.Millisecond
	DefaultPruneMaxWait     = time.Second
)

type PruneResult struct {
	Deleted int
	Failed  int
}

// Pruner deletes stale ledger entries in batches. Keys a batch delete leaves
// unprocessed are retried with a doubling wait; once the wait would exceed
// maxWait the remaining keys are left for the next cycle.
type Pruner struct {
	ledger      database.LedgerRepository
	batchSize   int
	initialWait time.Duration
	maxWait     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPruner(ledger database.LedgerRepository, batchSize int, initialWait, maxWait time.Duration) *Pruner {
	if batchSize <= 0 || batchSize > database.MaxDeleteBatch {
		batchSize = DefaultPruneBatchSize
	}
	if initialWait <= 0 {
		initialWait = DefaultPruneInitialWait
	}
	if maxWait <= 0 {
		maxWait = DefaultPruneMaxWait
	}
	return &Pruner{
		ledger:      ledger,
		batchSize:   batchSize,
		initialWait: initialWait,
		maxWait:     maxWait,
		sleep:       sleepContext,
	}
}

func (p *Pruner) Run(ctx context.Context, keys []database.LedgerKey) PruneResult {
	var result PruneResult

	for start := 0; start < len(keys); start += p.batchSize {
		end := min(start+p.batchSize, len(keys))
		deleted, failed := p.deleteBatch(ctx, keys[start:end])
		result.Deleted += deleted
		result.Failed += failed
	}

	return result
}

func (p *Pruner) deleteBatch(ctx context.Context, batch []database.LedgerKey) (int, int) {
	pending := batch
	deleted := 0
	wait := p.initialWait

	for {
		unprocessed, err := p.ledger.DeleteEntries(ctx, pending)
		if err != nil {
			slog.Warn("Ledger batch delete failed", "keys", len(pending), "error", err)
			unprocessed = pending
		}
		deleted += len(pending) - len(unprocessed)

		if len(unprocessed) == 0 {
			return deleted, 0
		}
		if wait > p.maxWait {
			slog.Warn("Giving up on stale ledger entries until next cycle", "keys", len(unprocessed))
			return deleted, len(unprocessed)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return deleted, len(unprocessed)
		}

		wait *= 2
		pending = unprocessed
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
