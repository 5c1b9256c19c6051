package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/events"
	"github.com/lysyi3m/rss-relay/app/feed"
)

// PublishItemTask emits the event for one new item and then records it in
// the ledger. The ledger is written only after the event was accepted, so a
// failure anywhere leaves the item eligible for redelivery.
type PublishItemTask struct {
	Task
	Message ItemMessage
	bus     events.Bus
	ledger  database.LedgerRepository
	now     func() time.Time
}

func NewPublishItemTask(msg ItemMessage, bus events.Bus, ledger database.LedgerRepository) *PublishItemTask {
	return &PublishItemTask{
		Task:    NewTask(TaskTypePublishItem, msg.Source),
		Message: msg,
		bus:     bus,
		ledger:  ledger,
		now:     time.Now,
	}
}

func (t *PublishItemTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	guid := t.Message.Item.GUID
	key := feed.ItemKey(t.Source, guid)

	event := events.NewItemEvent(t.Source, key, t.Message.Item, t.Message.Channel)
	if err := t.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish item: %w", err)
	}

	err := t.ledger.PutEntry(ctx, database.LedgerEntry{
		Source:      t.Source,
		GUID:        guid,
		DeliveredAt: t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	slog.Info("Task completed",
		"type", "PublishItem",
		"source", t.Source,
		"guid", guid,
		"event_id", event.ID,
		"duration", t.GetDuration())

	return nil
}
