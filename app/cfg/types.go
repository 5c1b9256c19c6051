package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	SourcesDir string

	// HTTP server
	Port         string
	APIAccessKey string

	// Scheduler
	WorkerCount       int
	SchedulerInterval time.Duration
	TaskTimeout       time.Duration
	ScanPageSize      int
	LedgerPageSize    int

	// Fetching
	UserAgent    string
	FetchTimeout time.Duration

	// Ledger pruning
	PruneBatchSize   int
	PruneInitialWait time.Duration
	PruneMaxWait     time.Duration

	// Queues
	QueueBackend        string
	QueueCapacity       int
	QueueDedupWindow    time.Duration
	QueueMaxReceives    int
	QueueRetryBaseDelay time.Duration
	RedisAddr           string

	// Event bus
	EventBus     string
	EventChannel string

	// Application metadata
	Timezone string
	Debug    bool
	LogFile  string
	Version  string
}
