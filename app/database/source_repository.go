package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var _ SourceRepository = (*SourceStore)(nil)

// SourceStore is the source registry backed by the sources table.
type SourceStore struct {
	db *DB
}

func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// ListSources returns up to limit sources ordered by URL, starting after the
// given continuation token. The returned token is empty on the last page.
func (s *SourceStore) ListSources(ctx context.Context, after string, limit int) ([]Source, string, error) {
	if limit <= 0 {
		return nil, "", fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, headers, created_at, updated_at
		FROM sources
		WHERE source > ?
		ORDER BY source
		LIMIT ?
	`, after, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, "", err
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating source rows: %w", err)
	}

	var next string
	if len(sources) > limit {
		sources = sources[:limit]
		next = sources[limit-1].URL
	}

	return sources, next, nil
}

func (s *SourceStore) GetSource(ctx context.Context, url string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, headers, created_at, updated_at
		FROM sources
		WHERE source = ?
	`, url)

	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (s *SourceStore) GetSourceCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return count, nil
}

func (s *SourceStore) UpsertSource(ctx context.Context, source Source) error {
	headers := source.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	encoded, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	now := toMillis(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (source, headers, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source) DO UPDATE
		SET headers = excluded.headers, updated_at = excluded.updated_at
	`, source.URL, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	return nil
}

func (s *SourceStore) DeleteSource(ctx context.Context, url string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE source = ?", url)
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (Source, error) {
	var (
		source               Source
		headers              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&source.URL, &headers, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return source, err
		}
		return source, fmt.Errorf("failed to scan source row: %w", err)
	}

	if err := json.Unmarshal([]byte(headers), &source.Headers); err != nil {
		return source, fmt.Errorf("failed to decode headers of %s: %w", source.URL, err)
	}
	source.CreatedAt = fromMillis(createdAt)
	source.UpdatedAt = fromMillis(updatedAt)

	return source, nil
}
