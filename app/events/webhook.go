package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/rss-relay/app/database"
)

var _ Bus = (*WebhookBus)(nil)

// WebhookBus delivers every event to all registered subscriptions as a JSON
// POST. Publishing fails if any subscriber fails, so the item is retried and
// subscribers must tolerate repeats by event key.
type WebhookBus struct {
	subs       database.SubscriptionRepository
	httpClient *http.Client
	userAgent  string
}

func NewWebhookBus(subs database.SubscriptionRepository, httpClient *http.Client, userAgent string) *WebhookBus {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookBus{
		subs:       subs,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (b *WebhookBus) Publish(ctx context.Context, event Event) error {
	subs, err := b.subs.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		slog.Debug("No subscriptions, event dropped", "source", event.Source, "key", event.Key)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var errs []error
	for _, sub := range subs {
		if err := b.post(ctx, sub.Endpoint, event, payload); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
		}
	}

	return errors.Join(errs...)
}

func (b *WebhookBus) post(ctx context.Context, endpoint string, event Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.DetailType)
	req.Header.Set("X-Event-Key", event.Key)
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return nil
}
