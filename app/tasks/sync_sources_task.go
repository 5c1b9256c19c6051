package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/feed"
)

// SyncSourcesTask mirrors the source seed files into the registry: enabled
// sources are upserted, disabled ones removed. Sources added through the API
// are left alone.
type SyncSourcesTask struct {
	Task
	configCache *feed.SourceConfigCache
	sourceRepo  database.SourceRepository
}

func NewSyncSourcesTask(configCache *feed.SourceConfigCache, sourceRepo database.SourceRepository) *SyncSourcesTask {
	return &SyncSourcesTask{
		Task:        NewTask(TaskTypeSyncSources, ""),
		configCache: configCache,
		sourceRepo:  sourceRepo,
	}
}

func (t *SyncSourcesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configs: %w", err)
	}

	var errs []error
	upserted, removed := 0, 0

	for name, config := range t.configCache.GetConfigs() {
		if !config.Enabled {
			deleted, err := t.sourceRepo.DeleteSource(ctx, config.URL)
			if err != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", name, err))
				continue
			}
			if deleted {
				removed++
			}
			slog.Debug("Source disabled", "name", name, "source", config.URL)
			continue
		}

		err := t.sourceRepo.UpsertSource(ctx, database.Source{URL: config.URL, Headers: config.Headers})
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", name, err))
			continue
		}
		upserted++
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to sync sources: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSources",
		"duration", t.GetDuration(),
		"upserted", upserted,
		"removed", removed)

	return nil
}
