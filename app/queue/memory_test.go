package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receiveWithin(t *testing.T, q Queue, timeout time.Duration) *Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected delivery, got error: %v", err)
	}
	return d
}

func TestMemoryQueueSendReceive(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue("items", Options{})

	if err := q.Send(ctx, Message{Body: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	d := receiveWithin(t, q, time.Second)
	if string(d.Body) != "a" {
		t.Errorf("Expected body 'a', got '%s'", d.Body)
	}
	if d.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", d.Attempt)
	}

	stats, _ := q.Stats(ctx)
	if stats.InFlight != 1 {
		t.Errorf("Expected 1 in-flight delivery, got %d", stats.InFlight)
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatal(err)
	}
	stats, _ = q.Stats(ctx)
	if stats.InFlight != 0 || stats.Pending != 0 {
		t.Errorf("Expected empty queue after ack, got %+v", stats)
	}
}

func TestMemoryQueueDedupWindow(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue("items", Options{DedupWindow: time.Minute})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	for range 3 {
		if err := q.Send(ctx, Message{Body: []byte("x"), DedupKey: "k"}); err != nil {
			t.Fatal(err)
		}
	}

	stats, _ := q.Stats(ctx)
	if stats.Pending != 1 {
		t.Errorf("Expected 1 pending message within dedup window, got %d", stats.Pending)
	}

	now = now.Add(2 * time.Minute)
	if err := q.Send(ctx, Message{Body: []byte("x"), DedupKey: "k"}); err != nil {
		t.Fatal(err)
	}
	stats, _ = q.Stats(ctx)
	if stats.Pending != 2 {
		t.Errorf("Expected key to be accepted after the window, got %d pending", stats.Pending)
	}
}

func TestMemoryQueueFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue("items", Options{Capacity: 1})

	if err := q.Send(ctx, Message{Body: []byte("a"), DedupKey: "a"}); err != nil {
		t.Fatal(err)
	}
	err := q.Send(ctx, Message{Body: []byte("b"), DedupKey: "b"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}

	// a rejected message does not hold its dedup key
	receiveWithin(t, q, time.Second)
	if err := q.Send(ctx, Message{Body: []byte("b"), DedupKey: "b"}); err != nil {
		t.Errorf("Expected retry of rejected message to succeed, got %v", err)
	}
}

func TestMemoryQueueNackRedelivers(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue("items", Options{MaxReceives: 2, RetryBaseDelay: 10 * time.Millisecond})

	if err := q.Send(ctx, Message{Body: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	first := receiveWithin(t, q, time.Second)
	if err := q.Nack(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := receiveWithin(t, q, time.Second)
	if second.ID != first.ID {
		t.Errorf("Expected redelivery of %s, got %s", first.ID, second.ID)
	}
	if second.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", second.Attempt)
	}

	if err := q.Nack(ctx, second); err != nil {
		t.Fatal(err)
	}

	stats, _ := q.Stats(ctx)
	if stats.DeadLettered != 1 {
		t.Errorf("Expected delivery to be dead-lettered, got %+v", stats)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected no further deliveries, got %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	opts := Options{RetryBaseDelay: time.Second}.withDefaults()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := opts.RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
