package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/queue"
)

// ScanSourcesTask fans the source registry out into one SourceMessage per
// source.
type ScanSourcesTask struct {
	Task
	sourceRepo database.SourceRepository
	sender     queue.Sender
	pageSize   int
}

func NewScanSourcesTask(sourceRepo database.SourceRepository, sender queue.Sender, pageSize int) *ScanSourcesTask {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ScanSourcesTask{
		Task:       NewTask(TaskTypeScanSources, ""),
		sourceRepo: sourceRepo,
		sender:     sender,
		pageSize:   pageSize,
	}
}

// Sources pages through the registry lazily. Iteration stops after the first
// error, which is yielded with a zero Source.
func (t *ScanSourcesTask) Sources(ctx context.Context) iter.Seq2[database.Source, error] {
	return func(yield func(database.Source, error) bool) {
		after := ""
		for {
			page, next, err := t.sourceRepo.ListSources(ctx, after, t.pageSize)
			if err != nil {
				yield(database.Source{}, err)
				return
			}
			for _, source := range page {
				if !yield(source, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			after = next
		}
	}
}

func (t *ScanSourcesTask) Execute(ctx context.Context) error {
	total, sent, failed := 0, 0, 0

	for source, err := range t.Sources(ctx) {
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		total++

		body, err := json.Marshal(SourceMessage{Source: source.URL, Headers: source.Headers})
		if err != nil {
			slog.Warn("Failed to encode source message", "source", source.URL, "error", err)
			failed++
			continue
		}

		if err := t.sender.Send(ctx, queue.Message{Body: body}); err != nil {
			slog.Warn("Failed to enqueue source", "source", source.URL, "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.Info("Task completed",
		"type", "ScanSources",
		"duration", t.GetDuration(),
		"sources", total,
		"sent", sent,
		"failed", failed)

	return nil
}
