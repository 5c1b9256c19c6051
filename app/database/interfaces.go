package database

import (
	"context"
)

type SourceRepository interface {
	ListSources(ctx context.Context, after string, limit int) ([]Source, string, error)
	GetSource(ctx context.Context, url string) (*Source, error)
	GetSourceCount(ctx context.Context) (int, error)

	UpsertSource(ctx context.Context, source Source) error
	DeleteSource(ctx context.Context, url string) (bool, error)
}

type LedgerRepository interface {
	GetEntry(ctx context.Context, source, guid string) (*LedgerEntry, error)
	ListEntries(ctx context.Context, query LedgerQuery) ([]LedgerEntry, string, error)
	GetEntryCount(ctx context.Context) (int, error)

	PutEntry(ctx context.Context, entry LedgerEntry) error
	DeleteEntries(ctx context.Context, keys []LedgerKey) ([]LedgerKey, error)
}

type SubscriptionRepository interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)

	CreateSubscription(ctx context.Context, endpoint string) (*Subscription, bool, error)
	DeleteSubscription(ctx context.Context, id string) (bool, error)
}
