package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/lysyi3m/rss-relay/app/feed"
)

// SourceMessage asks for one fetch-and-diff cycle of a source.
type SourceMessage struct {
	Source  string            `json:"source"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ItemMessage carries one new item to the publisher together with the
// channel metadata of the fetch that discovered it.
type ItemMessage struct {
	Source  string       `json:"source"`
	Channel feed.Channel `json:"channel"`
	Item    feed.Item    `json:"item"`
}

func decodeSourceMessage(body []byte) (SourceMessage, error) {
	var msg SourceMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode source message: %w", err)
	}
	if msg.Source == "" {
		return msg, fmt.Errorf("source message has no source")
	}
	return msg, nil
}

func decodeItemMessage(body []byte) (ItemMessage, error) {
	var msg ItemMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode item message: %w", err)
	}
	if msg.Source == "" || msg.Item.GUID == "" {
		return msg, fmt.Errorf("item message has no source or guid")
	}
	return msg, nil
}
