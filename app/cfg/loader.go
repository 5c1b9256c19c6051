package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"

	EventBusWebhook = "webhook"
	EventBusRedis   = "redis"
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/rss-relay.db" description:"SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source seed files"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Scheduler
	WorkerCount       int           `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of workers per queue"`
	SchedulerInterval time.Duration `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"15m" description:"Interval between registry scans"`
	TaskTimeout       time.Duration `long:"task-timeout" env:"TASK_TIMEOUT" default:"5m" description:"Upper bound for a single task"`
	ScanPageSize      int           `long:"scan-page-size" env:"SCAN_PAGE_SIZE" default:"100" description:"Sources read per registry page"`
	LedgerPageSize    int           `long:"ledger-page-size" env:"LEDGER_PAGE_SIZE" default:"500" description:"Ledger entries read per page"`

	// Fetching
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"RSS Relay/1.0" description:"User agent string for HTTP requests"`
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single source fetch"`

	// Ledger pruning
	PruneBatchSize   int           `long:"prune-batch-size" env:"PRUNE_BATCH_SIZE" default:"25" description:"Ledger keys deleted per batch (max 25)"`
	PruneInitialWait time.Duration `long:"prune-initial-wait" env:"PRUNE_INITIAL_WAIT" default:"50ms" description:"First wait before retrying unprocessed deletes"`
	PruneMaxWait     time.Duration `long:"prune-max-wait" env:"PRUNE_MAX_WAIT" default:"1s" description:"Give up retrying once the wait exceeds this"`

	// Queues
	QueueBackend        string        `long:"queue-backend" env:"QUEUE_BACKEND" default:"memory" choice:"memory" choice:"redis" description:"Work queue backend"`
	QueueCapacity       int           `long:"queue-capacity" env:"QUEUE_CAPACITY" default:"300" description:"Maximum pending messages per in-memory queue"`
	QueueDedupWindow    time.Duration `long:"queue-dedup-window" env:"QUEUE_DEDUP_WINDOW" default:"5m" description:"Window in which duplicate messages are dropped"`
	QueueMaxReceives    int           `long:"queue-max-receives" env:"QUEUE_MAX_RECEIVES" default:"5" description:"Deliveries before a message is dead-lettered"`
	QueueRetryBaseDelay time.Duration `long:"queue-retry-delay" env:"QUEUE_RETRY_DELAY" default:"1s" description:"Base redelivery delay, doubled per attempt"`
	RedisAddr           string        `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the redis queue and event bus"`

	// Event bus
	EventBus     string `long:"event-bus" env:"EVENT_BUS" default:"webhook" choice:"webhook" choice:"redis" description:"Where new item events are published"`
	EventChannel string `long:"event-channel" env:"EVENT_CHANNEL" default:"rss-relay:items" description:"Redis channel for the redis event bus"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFile  string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this file, rotated by size"`
}

// Load parses the process arguments and environment. It returns (nil, nil)
// when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		SourcesDir:          raw.SourcesDir,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		WorkerCount:         raw.WorkerCount,
		SchedulerInterval:   raw.SchedulerInterval,
		TaskTimeout:         raw.TaskTimeout,
		ScanPageSize:        raw.ScanPageSize,
		LedgerPageSize:      raw.LedgerPageSize,
		UserAgent:           raw.UserAgent,
		FetchTimeout:        raw.FetchTimeout,
		PruneBatchSize:      raw.PruneBatchSize,
		PruneInitialWait:    raw.PruneInitialWait,
		PruneMaxWait:        raw.PruneMaxWait,
		QueueBackend:        raw.QueueBackend,
		QueueCapacity:       raw.QueueCapacity,
		QueueDedupWindow:    raw.QueueDedupWindow,
		QueueMaxReceives:    raw.QueueMaxReceives,
		QueueRetryBaseDelay: raw.QueueRetryBaseDelay,
		RedisAddr:           raw.RedisAddr,
		EventBus:            raw.EventBus,
		EventChannel:        raw.EventChannel,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		LogFile:             raw.LogFile,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	switch {
	case cfg.WorkerCount <= 0:
		return fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	case cfg.SchedulerInterval <= 0:
		return fmt.Errorf("scheduler interval must be positive, got %s", cfg.SchedulerInterval)
	case cfg.ScanPageSize <= 0 || cfg.LedgerPageSize <= 0:
		return fmt.Errorf("page sizes must be positive")
	case cfg.PruneBatchSize <= 0 || cfg.PruneBatchSize > 25:
		return fmt.Errorf("prune batch size must be between 1 and 25, got %d", cfg.PruneBatchSize)
	case cfg.PruneInitialWait <= 0 || cfg.PruneMaxWait < cfg.PruneInitialWait:
		return fmt.Errorf("prune waits must be positive and initial wait must not exceed max wait")
	case cfg.QueueMaxReceives <= 0:
		return fmt.Errorf("queue max receives must be positive, got %d", cfg.QueueMaxReceives)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
