package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process queue on a buffered channel. Redeliveries are
// scheduled with timers and are lost on restart.
type MemoryQueue struct {
	name  string
	opts  Options
	items chan *Delivery
	now   func() time.Time

	mu       sync.Mutex
	seen     map[string]time.Time
	inFlight map[string]*Delivery
	delayed  int
	dead     int
}

func NewMemoryQueue(name string, opts Options) *MemoryQueue {
	opts = opts.withDefaults()
	return &MemoryQueue{
		name:     name,
		opts:     opts,
		items:    make(chan *Delivery, opts.Capacity),
		now:      time.Now,
		seen:     make(map[string]time.Time),
		inFlight: make(map[string]*Delivery),
	}
}

func (q *MemoryQueue) Name() string {
	return q.name
}

func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if msg.DedupKey != "" && !q.claim(msg.DedupKey) {
		slog.Debug("Duplicate message dropped", "queue", q.name, "dedup_key", msg.DedupKey)
		return nil
	}

	d := &Delivery{
		ID:       uuid.NewString(),
		Body:     msg.Body,
		DedupKey: msg.DedupKey,
		Attempt:  1,
	}

	select {
	case q.items <- d:
		return nil
	default:
		if msg.DedupKey != "" {
			q.release(msg.DedupKey)
		}
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case d := <-q.items:
		q.mu.Lock()
		q.inFlight[d.ID] = d
		q.mu.Unlock()
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	delete(q.inFlight, d.ID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	delete(q.inFlight, d.ID)

	if d.Attempt >= q.opts.MaxReceives {
		q.dead++
		q.mu.Unlock()
		slog.Warn("Delivery dead-lettered", "queue", q.name, "id", d.ID, "attempts", d.Attempt)
		return nil
	}

	q.delayed++
	q.mu.Unlock()

	next := &Delivery{
		ID:       d.ID,
		Body:     d.Body,
		DedupKey: d.DedupKey,
		Attempt:  d.Attempt + 1,
	}
	delay := q.opts.RetryDelay(d.Attempt)

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.delayed--
		q.mu.Unlock()

		select {
		case q.items <- next:
		default:
			q.mu.Lock()
			q.dead++
			q.mu.Unlock()
			slog.Warn("Delivery dead-lettered, queue full on redelivery", "queue", q.name, "id", next.ID)
		}
	})

	return nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:         q.name,
		Pending:      len(q.items),
		InFlight:     len(q.inFlight),
		Delayed:      q.delayed,
		DeadLettered: q.dead,
	}, nil
}

// claim reserves key for the dedup window. It returns false when the key was
// already claimed and has not expired.
func (q *MemoryQueue) claim(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for k, expires := range q.seen {
		if !now.Before(expires) {
			delete(q.seen, k)
		}
	}

	if _, ok := q.seen[key]; ok {
		return false
	}
	q.seen[key] = now.Add(q.opts.DedupWindow)
	return true
}

func (q *MemoryQueue) release(key string) {
	q.mu.Lock()
	delete(q.seen, key)
	q.mu.Unlock()
}
