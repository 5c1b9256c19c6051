package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Queue = (*RedisQueue)(nil)

const redisPollTimeout = time.Second

type envelope struct {
	ID       string `json:"id"`
	Body     []byte `json:"body"`
	DedupKey string `json:"dedupKey,omitempty"`
	Attempt  int    `json:"attempt"`
}

// RedisQueue keeps messages in Redis lists so they survive restarts.
// Received messages sit in a processing list until acknowledged; nacked
// messages wait in a sorted set scored by their redelivery time.
type RedisQueue struct {
	client *redis.Client
	name   string
	opts   Options

	pendingKey    string
	processingKey string
	delayedKey    string
	deadKey       string
	dedupPrefix   string
}

func NewRedisQueue(client *redis.Client, name string, opts Options) *RedisQueue {
	prefix := "rss-relay:queue:" + name
	return &RedisQueue{
		client:        client,
		name:          name,
		opts:          opts.withDefaults(),
		pendingKey:    prefix,
		processingKey: prefix + ":processing",
		delayedKey:    prefix + ":delayed",
		deadKey:       prefix + ":dead",
		dedupPrefix:   prefix + ":dedup:",
	}
}

func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	if msg.DedupKey != "" {
		ok, err := q.client.SetNX(ctx, q.dedupPrefix+msg.DedupKey, 1, q.opts.DedupWindow).Result()
		if err != nil {
			return fmt.Errorf("failed to claim dedup key: %w", err)
		}
		if !ok {
			slog.Debug("Duplicate message dropped", "queue", q.name, "dedup_key", msg.DedupKey)
			return nil
		}
	}

	err := q.push(ctx, msg)
	if err != nil && msg.DedupKey != "" {
		if delErr := q.client.Del(ctx, q.dedupPrefix+msg.DedupKey).Err(); delErr != nil {
			slog.Warn("Failed to release dedup key", "queue", q.name, "dedup_key", msg.DedupKey, "error", delErr)
		}
	}
	return err
}

func (q *RedisQueue) push(ctx context.Context, msg Message) error {
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get queue length: %w", err)
	}
	if n >= int64(q.opts.Capacity) {
		return ErrQueueFull
	}

	data, err := json.Marshal(envelope{
		ID:       uuid.NewString(),
		Body:     msg.Body,
		DedupKey: msg.DedupKey,
		Attempt:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := q.client.LPush(ctx, q.pendingKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := q.promoteDue(ctx); err != nil {
			slog.Warn("Failed to promote delayed messages", "queue", q.name, "error", err)
		}

		raw, err := q.client.BRPopLPush(ctx, q.pendingKey, q.processingKey, redisPollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to receive message: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			slog.Error("Discarding undecodable message", "queue", q.name, "error", err)
			_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, q.processingKey, 1, raw)
				pipe.LPush(ctx, q.deadKey, raw)
				return nil
			})
			if err != nil {
				slog.Error("Failed to dead-letter undecodable message", "queue", q.name, "error", err)
			}
			continue
		}

		return &Delivery{
			ID:       env.ID,
			Body:     env.Body,
			DedupKey: env.DedupKey,
			Attempt:  env.Attempt,
			raw:      raw,
		}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	if d.Attempt >= q.opts.MaxReceives {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processingKey, 1, d.raw)
			pipe.LPush(ctx, q.deadKey, d.raw)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to dead-letter message: %w", err)
		}
		slog.Warn("Delivery dead-lettered", "queue", q.name, "id", d.ID, "attempts", d.Attempt)
		return nil
	}

	data, err := json.Marshal(envelope{
		ID:       d.ID,
		Body:     d.Body,
		DedupKey: d.DedupKey,
		Attempt:  d.Attempt + 1,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	readyAt := time.Now().Add(q.opts.RetryDelay(d.Attempt))
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey, 1, d.raw)
		pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: string(data)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

// Recover moves messages left in the processing list by a previous run back
// to the pending list.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey, q.pendingKey).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover messages: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey)
	inFlight := pipe.LLen(ctx, q.processingKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	dead := pipe.LLen(ctx, q.deadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return Stats{
		Name:         q.name,
		Pending:      int(pending.Val()),
		InFlight:     int(inFlight.Val()),
		Delayed:      int(delayed.Val()),
		DeadLettered: int(dead.Val()),
	}, nil
}

// promoteDue moves delayed messages whose redelivery time has passed back to
// the pending list. ZRem guards against two receivers moving the same member.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.pendingKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
