package api

import (
	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/tasks"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Handler struct {
	sourceRepo       database.SourceRepository
	ledgerRepo       database.LedgerRepository
	subscriptionRepo database.SubscriptionRepository
	configCache      *feed.SourceConfigCache
	scheduler        tasks.TaskSchedulerInterface
}

type sourceRequest struct {
	Source  string            `json:"source"`
	Headers map[string]string `json:"headers"`
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}
