package tasks

import (
	"context"

	"github.com/lysyi3m/rss-relay/app/queue"
)

// TaskSchedulerInterface is what the application and the HTTP API need from
// the scheduler.
//
//	scheduler := NewScheduler(deps, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerScan()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	TriggerScan() bool
	Stats(ctx context.Context) ([]queue.Stats, error)
}
