package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/queue"
)

// ProcessChannelTask runs one fetch, parse and diff cycle for a source. New
// items are enqueued for publishing; stale ledger entries are pruned.
type ProcessChannelTask struct {
	Task
	Message  SourceMessage
	fetcher  *feed.Fetcher
	parser   *feed.Parser
	ledger   database.LedgerRepository
	items    queue.Sender
	pruner   *Pruner
	pageSize int
}

func NewProcessChannelTask(msg SourceMessage, fetcher *feed.Fetcher, parser *feed.Parser, ledger database.LedgerRepository, items queue.Sender, pruner *Pruner, pageSize int) *ProcessChannelTask {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ProcessChannelTask{
		Task:     NewTask(TaskTypeProcessChannel, msg.Source),
		Message:  msg,
		fetcher:  fetcher,
		parser:   parser,
		ledger:   ledger,
		items:    items,
		pruner:   pruner,
		pageSize: pageSize,
	}
}

func (t *ProcessChannelTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	resp, err := t.fetcher.Run(ctx, t.Source, t.Message.Headers)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	doc, err := t.parser.Run(resp.Body, resp.ContentType)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	if doc.Skipped > 0 {
		slog.Warn("Items without identifier dropped", "source", t.Source, "count", doc.Skipped)
	}

	stored, err := t.storedIdentifiers(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	diff := Diff(doc.Items, stored)

	sent, sendFailed := 0, 0
	for _, item := range diff.New {
		if err := t.enqueueItem(ctx, doc.Channel, item); err != nil {
			slog.Warn("Failed to enqueue item", "source", t.Source, "guid", item.GUID, "error", err)
			sendFailed++
			continue
		}
		sent++
	}

	var pruned PruneResult
	if len(diff.Stale) > 0 {
		keys := make([]database.LedgerKey, len(diff.Stale))
		for i, guid := range diff.Stale {
			keys[i] = database.LedgerKey{Source: t.Source, GUID: guid}
		}
		pruned = t.pruner.Run(ctx, keys)
	}

	slog.Info("Task completed",
		"type", "ProcessChannel",
		"source", t.Source,
		"format", doc.Format,
		"duration", t.GetDuration(),
		"total", len(doc.Items),
		"new", sent,
		"enqueue_failed", sendFailed,
		"stale", len(diff.Stale),
		"pruned", pruned.Deleted,
		"prune_failed", pruned.Failed)

	return nil
}

func (t *ProcessChannelTask) storedIdentifiers(ctx context.Context) ([]string, error) {
	var guids []string
	query := database.LedgerQuery{Source: t.Source, Limit: t.pageSize}

	for {
		page, next, err := t.ledger.ListEntries(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, entry := range page {
			guids = append(guids, entry.GUID)
		}
		if next == "" {
			return guids, nil
		}
		query.After = next
	}
}

func (t *ProcessChannelTask) enqueueItem(ctx context.Context, channel feed.Channel, item feed.Item) error {
	body, err := json.Marshal(ItemMessage{
		Source:  t.Source,
		Channel: channel,
		Item:    item,
	})
	if err != nil {
		return fmt.Errorf("failed to encode item message: %w", err)
	}

	return t.items.Send(ctx, queue.Message{
		Body:     body,
		DedupKey: feed.ItemKey(t.Source, item.GUID),
	})
}
