package database

import (
	"errors"
	"time"
)

// MaxDeleteBatch is the largest number of ledger keys accepted by a single
// DeleteEntries call.
const MaxDeleteBatch = 25

var ErrBatchTooLarge = errors.New("delete batch exceeds maximum size")

// Source is a registered feed. URL is both the fetch address and the
// identifier.
type Source struct {
	URL       string            `json:"source"`
	Headers   map[string]string `json:"headers"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// LedgerEntry records that an item was delivered downstream.
type LedgerEntry struct {
	Source      string    `json:"source"`
	GUID        string    `json:"guid"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type LedgerKey struct {
	Source string
	GUID   string
}

// LedgerQuery selects one page of a source's ledger entries ordered by
// identifier. After is the continuation token returned by the previous page.
type LedgerQuery struct {
	Source string
	After  string
	Since  time.Time
	Limit  int
}

type Subscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}
