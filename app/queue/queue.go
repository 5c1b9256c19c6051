package queue

import (
	"context"
	"errors"
	"time"
)

var ErrQueueFull = errors.New("queue is full")

const (
	DefaultCapacity       = 300
	DefaultDedupWindow    = 5 * time.Minute
	DefaultMaxReceives    = 5
	DefaultRetryBaseDelay = time.Second
	maxRetryDelay         = 30 * time.Second
)

// Message is a unit of work to enqueue. A non-empty DedupKey suppresses any
// other message with the same key sent within the dedup window.
type Message struct {
	Body     []byte
	DedupKey string
}

// Delivery is a received message. Attempt starts at 1 and grows with every
// redelivery.
type Delivery struct {
	ID       string
	Body     []byte
	DedupKey string
	Attempt  int

	raw string
}

type Stats struct {
	Name         string `json:"name"`
	Pending      int    `json:"pending"`
	InFlight     int    `json:"inFlight"`
	Delayed      int    `json:"delayed"`
	DeadLettered int    `json:"deadLettered"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Queue is an at-least-once work queue. Every received delivery must be
// either acknowledged or negatively acknowledged; a nacked delivery is
// redelivered after a backoff until it reaches MaxReceives, then it is
// dead-lettered.
type Queue interface {
	Sender
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Nack(ctx context.Context, d *Delivery) error
	Stats(ctx context.Context) (Stats, error)
	Name() string
}

type Options struct {
	Capacity       int
	DedupWindow    time.Duration
	MaxReceives    int
	RetryBaseDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = DefaultDedupWindow
	}
	if o.MaxReceives <= 0 {
		o.MaxReceives = DefaultMaxReceives
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return o
}

// RetryDelay returns the backoff before redelivering a message that failed
// its attempt-th receive.
func (o Options) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := o.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(delay, maxRetryDelay)
}
