package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/rss-relay/app/feed"
)

const DetailTypeNewItem = "New RSS Item"

// Detail is the payload of a new-item event.
type Detail struct {
	Item    feed.Item    `json:"item"`
	Channel feed.Channel `json:"channel"`
}

// Event announces one newly discovered feed item. Key is the item's
// deduplication key, so consumers can drop repeated deliveries.
type Event struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	DetailType string    `json:"detailType"`
	Key        string    `json:"key"`
	Time       time.Time `json:"time"`
	Detail     Detail    `json:"detail"`
}

func NewItemEvent(source, key string, item feed.Item, channel feed.Channel) Event {
	return Event{
		ID:         uuid.NewString(),
		Source:     source,
		DetailType: DetailTypeNewItem,
		Key:        key,
		Time:       time.Now().UTC(),
		Detail:     Detail{Item: item, Channel: channel},
	}
}

type Bus interface {
	Publish(ctx context.Context, event Event) error
}
