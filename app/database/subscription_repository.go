package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SubscriptionRepository = (*SubscriptionStore)(nil)

// SubscriptionStore holds the webhook endpoints that receive item events.
type SubscriptionStore struct {
	db *DB
}

func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, created_at FROM subscriptions ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		var createdAt int64
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		sub.CreatedAt = fromMillis(createdAt)
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

// CreateSubscription registers endpoint. If it is already registered the
// existing subscription is returned and created is false.
func (s *SubscriptionStore) CreateSubscription(ctx context.Context, endpoint string) (*Subscription, bool, error) {
	sub := Subscription{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		CreatedAt: time.UnixMilli(toMillis(time.Now())).UTC(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, endpoint, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (endpoint) DO NOTHING
	`, sub.ID, sub.Endpoint, toMillis(sub.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create subscription: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return &sub, true, nil
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM subscriptions WHERE endpoint = ?
	`, endpoint).Scan(&sub.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("subscription for %s vanished after conflict", endpoint)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.CreatedAt = fromMillis(createdAt)

	return &sub, false, nil
}

func (s *SubscriptionStore) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}
	return n > 0, nil
}
