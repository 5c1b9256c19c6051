package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/events"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/queue"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultTaskTimeout = 5 * time.Minute
	receiveErrorDelay  = time.Second
)

type Dependencies struct {
	SourceRepo  database.SourceRepository
	LedgerRepo  database.LedgerRepository
	ConfigCache *feed.SourceConfigCache
	Fetcher     *feed.Fetcher
	Parser      *feed.Parser
	Bus         events.Bus
	Pruner      *Pruner
	SourceQueue queue.Queue
	ItemQueue   queue.Queue
}

type Options struct {
	Interval       time.Duration
	WorkerCount    int
	TaskTimeout    time.Duration
	ScanPageSize   int
	LedgerPageSize int
}

// Scheduler drives the pipeline: it scans the registry on a ticker and runs a
// worker pool per queue. Source deliveries are always acknowledged, a failed
// cycle is abandoned until the next scan. Item deliveries are acknowledged
// only after a successful publish and nacked otherwise.
type Scheduler struct {
	deps Dependencies
	opts Options

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	scanRequests chan struct{}
}

func NewScheduler(deps Dependencies, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		deps:         deps,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		scanRequests: make(chan struct{}, 1),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(2)
		go s.worker(i, s.deps.SourceQueue, s.handleSource)
		go s.worker(i, s.deps.ItemQueue, s.handleItem)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.runStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.scan()
			case <-s.scanRequests:
				s.scan()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// TriggerScan requests an immediate scan. It returns false when a requested
// scan is already pending.
func (s *Scheduler) TriggerScan() bool {
	select {
	case s.scanRequests <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Stats(ctx context.Context) ([]queue.Stats, error) {
	var stats []queue.Stats
	for _, q := range []queue.Queue{s.deps.SourceQueue, s.deps.ItemQueue} {
		st, err := q.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func (s *Scheduler) runStartupTasks() {
	if s.deps.ConfigCache != nil {
		syncTask := NewSyncSourcesTask(s.deps.ConfigCache, s.deps.SourceRepo)
		if err := s.executeTask(-1, syncTask); err != nil {
			slog.Warn("Source sync failed, scanning existing registry", "error", err)
		}
	}
	s.scan()
}

func (s *Scheduler) scan() {
	task := NewScanSourcesTask(s.deps.SourceRepo, s.deps.SourceQueue, s.opts.ScanPageSize)
	s.executeTask(-1, task)
}

func (s *Scheduler) worker(id int, q queue.Queue, handle func(workerID int, d *queue.Delivery)) {
	defer s.wg.Done()

	for {
		d, err := q.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Error("Failed to receive from queue", "worker_id", id, "queue", q.Name(), "error", err)
			select {
			case <-time.After(receiveErrorDelay):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		handle(id, d)
	}
}

func (s *Scheduler) handleSource(workerID int, d *queue.Delivery) {
	defer s.ack(s.deps.SourceQueue, d)

	msg, err := decodeSourceMessage(d.Body)
	if err != nil {
		slog.Error("Discarding source delivery", "worker_id", workerID, "id", d.ID, "error", err)
		return
	}

	task := NewProcessChannelTask(msg, s.deps.Fetcher, s.deps.Parser, s.deps.LedgerRepo,
		s.deps.ItemQueue, s.deps.Pruner, s.opts.LedgerPageSize)
	if err := s.executeTask(workerID, task); err != nil {
		slog.Warn("Channel cycle abandoned", "source", msg.Source, "reason", failureReason(err))
	}
}

func (s *Scheduler) handleItem(workerID int, d *queue.Delivery) {
	msg, err := decodeItemMessage(d.Body)
	if err != nil {
		slog.Error("Discarding item delivery", "worker_id", workerID, "id", d.ID, "error", err)
		s.ack(s.deps.ItemQueue, d)
		return
	}

	task := NewPublishItemTask(msg, s.deps.Bus, s.deps.LedgerRepo)
	if err := s.executeTask(workerID, task); err != nil {
		slog.Warn("Item publish will be retried", "source", msg.Source, "guid", msg.Item.GUID, "attempt", d.Attempt)
		if nackErr := s.deps.ItemQueue.Nack(s.ctx, d); nackErr != nil {
			slog.Error("Failed to nack delivery", "queue", s.deps.ItemQueue.Name(), "id", d.ID, "error", nackErr)
		}
		return
	}

	s.ack(s.deps.ItemQueue, d)
}

func (s *Scheduler) ack(q queue.Queue, d *queue.Delivery) {
	// the scheduler context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Ack(ctx, d); err != nil {
		slog.Error("Failed to ack delivery", "queue", q.Name(), "id", d.ID, "error", err)
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) error {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.opts.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err != nil {
		slog.Error("Worker task execution failed",
			"worker_id", workerID,
			"type", string(task.GetType()),
			"id", task.GetID(),
			"source", task.GetSource(),
			"duration", task.GetDuration(),
			"error", err)
	}
	return err
}

func failureReason(err error) string {
	var fetchErr *feed.FetchError
	var formatErr *feed.FormatError

	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &formatErr):
		return "format"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
