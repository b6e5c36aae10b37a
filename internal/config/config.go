package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// ServerConfig configures the central decision server.
type ServerConfig struct {
	Environment string `envconfig:"SENTINEL_ENVIRONMENT" default:"development"`
	ListenAddr  string `envconfig:"SENTINEL_LISTEN_ADDR" default:":5000"`
	DBPath      string `envconfig:"SENTINEL_DB_PATH" default:"/var/lib/tagsentry/events.db"`

	// Classification windows, seconds, measured on the central clock.
	DedupWindowSec int `envconfig:"SENTINEL_DEDUP_WINDOW_SEC" default:"10"`
	IgnoreLateSec  int `envconfig:"SENTINEL_IGNORE_LATE_SEC" default:"300"`

	// Retention cap on the classified-event log, rows.
	MaxEvents int64 `envconfig:"SENTINEL_MAX_EVENTS" default:"1000000"`

	WhitelistFile string `envconfig:"SENTINEL_WHITELIST_FILE" required:"true"`
	SchedulesFile string `envconfig:"SENTINEL_SCHEDULES_FILE" default:""`
	RelayMapFile  string `envconfig:"SENTINEL_RELAY_MAP_FILE" default:""`

	RelayEnabled     bool    `envconfig:"SENTINEL_RELAY_ENABLED" default:"true"`
	RelayDevice      string  `envconfig:"SENTINEL_RELAY_DEVICE" default:"/dev/ttyS0"`
	RelayPulseSec    float64 `envconfig:"SENTINEL_RELAY_PULSE_SEC" default:"0.2"`
	StoreRetryMax    int     `envconfig:"SENTINEL_STORE_RETRY_MAX" default:"5"`
	StoreRetryBaseMS int     `envconfig:"SENTINEL_STORE_RETRY_BASE_MS" default:"100"`
}

// EdgeConfig configures an edge agent.
type EdgeConfig struct {
	Environment string `envconfig:"EDGE_ENVIRONMENT" default:"development"`
	ReaderID    string `envconfig:"EDGE_READER_ID" required:"true"`
	ServerURL   string `envconfig:"EDGE_SERVER_URL" required:"true"`
	DBPath      string `envconfig:"EDGE_DB_PATH" default:"/var/lib/tagsentry/edge.db"`

	// Local queue bound; oldest records are evicted past this count.
	QueueCapacity int64 `envconfig:"EDGE_QUEUE_CAPACITY" default:"10000"`

	SendBatchSize   int `envconfig:"EDGE_SEND_BATCH_SIZE" default:"200"`
	SendIntervalSec int `envconfig:"EDGE_SEND_INTERVAL_SEC" default:"2"`
	SendTimeoutSec  int `envconfig:"EDGE_SEND_TIMEOUT_SEC" default:"3"`

	// Replay source for bench/simulation runs; empty means the agent
	// expects a vendor adapter wired in at build time.
	ReplayFile string `envconfig:"EDGE_REPLAY_FILE" default:""`
}

// LoadServer reads the server configuration from the environment.
func LoadServer() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// LoadEdge reads the edge agent configuration from the environment.
func LoadEdge() (*EdgeConfig, error) {
	var cfg EdgeConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
