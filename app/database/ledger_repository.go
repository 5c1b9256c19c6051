package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var _ LedgerRepository = (*LedgerStore)(nil)

// LedgerStore is the idempotency ledger backed by the ledger table. A row
// exists for (source, guid) exactly when the item was delivered and is still
// present in the source feed.
type LedgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (l *LedgerStore) GetEntry(ctx context.Context, source, guid string) (*LedgerEntry, error) {
	entry := LedgerEntry{Source: source, GUID: guid}
	var deliveredAt int64

	err := l.db.QueryRowContext(ctx, `
		SELECT delivered_at FROM ledger WHERE source = ? AND guid = ?
	`, source, guid).Scan(&deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	entry.DeliveredAt = fromMillis(deliveredAt)
	return &entry, nil
}

// ListEntries returns one page of entries for query.Source ordered by guid.
// A non-zero Since restricts the page to entries delivered at or after it.
func (l *LedgerStore) ListEntries(ctx context.Context, query LedgerQuery) ([]LedgerEntry, string, error) {
	if query.Limit <= 0 {
		return nil, "", fmt.Errorf("limit must be positive, got %d", query.Limit)
	}

	var sb strings.Builder
	sb.WriteString("SELECT guid, delivered_at FROM ledger WHERE source = ? AND guid > ?")
	args := []any{query.Source, query.After}
	if !query.Since.IsZero() {
		sb.WriteString(" AND delivered_at >= ?")
		args = append(args, toMillis(query.Since))
	}
	sb.WriteString(" ORDER BY guid LIMIT ?")
	args = append(args, query.Limit+1)

	rows, err := l.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		entry := LedgerEntry{Source: query.Source}
		var deliveredAt int64
		if err := rows.Scan(&entry.GUID, &deliveredAt); err != nil {
			return nil, "", fmt.Errorf("failed to scan ledger row: %w", err)
		}
		entry.DeliveredAt = fromMillis(deliveredAt)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating ledger rows: %w", err)
	}

	var next string
	if len(entries) > query.Limit {
		entries = entries[:query.Limit]
		next = entries[query.Limit-1].GUID
	}

	return entries, next, nil
}

func (l *LedgerStore) GetEntryCount(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// PutEntry records a delivery. Writing the same (source, guid) again keeps a
// single row and refreshes its delivery time.
func (l *LedgerStore) PutEntry(ctx context.Context, entry LedgerEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger (source, guid, delivered_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source, guid) DO UPDATE
		SET delivered_at = excluded.delivered_at
	`, entry.Source, entry.GUID, toMillis(entry.DeliveredAt))
	if err != nil {
		return fmt.Errorf("failed to put ledger entry: %w", err)
	}
	return nil
}

// DeleteEntries removes up to MaxDeleteBatch entries and returns the keys that
// could not be deleted. Deleting an absent key is not an error.
func (l *LedgerStore) DeleteEntries(ctx context.Context, keys []LedgerKey) ([]LedgerKey, error) {
	if len(keys) > MaxDeleteBatch {
		return nil, fmt.Errorf("%w: %d keys", ErrBatchTooLarge, len(keys))
	}

	var unprocessed []LedgerKey
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return append(unprocessed, keys[i:]...), nil
		}
		_, err := l.db.ExecContext(ctx, "DELETE FROM ledger WHERE source = ? AND guid = ?", key.Source, key.GUID)
		if err != nil {
			unprocessed = append(unprocessed, key)
		}
	}

	return unprocessed, nil
}
