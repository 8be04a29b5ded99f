// Package config loads the engine's runtime knobs (§6 Environment/CLI,
// peripheral) via viper: storage backend connection info, the local
// on-disk base path, default polling behavior, and concurrency limits.
// The REST-facing flags (--host, --port, --cors-*) are not read here
// since the REST surface itself is out of scope (§ Non-goals).
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the resolved set of engine-wide runtime knobs.
type Config struct {
	// BasePath is the root directory under which every index's
	// {index_id}/data and {index_id}/meta directories live (§6 On-disk
	// layout).
	BasePath string

	// CQLHosts/CQLKeyspace configure the gocql-backed durable store.
	CQLHosts    []string
	CQLKeyspace string

	// MaxConcurrency bounds the reader pool's admission semaphore and
	// worker count per index (§4.2 Admission).
	MaxConcurrency int

	// ReaderThreads is loaded from reader_threads but is not read by the
	// reader pool: each query runs on a single worker goroutine, with no
	// separate per-query segment-search executor.
	ReaderThreads int

	// PollingContinuous/PollingInterval set the default polling mode
	// for newly-opened indexes (§4.5 Polling mode), subject to the
	// poller package's own floor.
	PollingContinuous bool
	PollingInterval   time.Duration

	LogLevel string
}

// Load reads configuration from (in ascending priority) defaults, a
// config file at configPath (if non-empty), and LNX_-prefixed
// environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("base_path", "./data")
	v.SetDefault("cql.hosts", []string{"127.0.0.1"})
	v.SetDefault("cql.keyspace", "lnx")
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("reader_threads", 1)
	v.SetDefault("polling.continuous", true)
	v.SetDefault("polling.interval", "200ms")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("lnx")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "config: read config file")
		}
	}

	interval, err := time.ParseDuration(v.GetString("polling.interval"))
	if err != nil {
		return nil, errors.Wrap(err, "config: parse polling.interval")
	}

	return &Config{
		BasePath:          v.GetString("base_path"),
		CQLHosts:          v.GetStringSlice("cql.hosts"),
		CQLKeyspace:       v.GetString("cql.keyspace"),
		MaxConcurrency:    v.GetInt("max_concurrency"),
		ReaderThreads:     v.GetInt("reader_threads"),
		PollingContinuous: v.GetBool("polling.continuous"),
		PollingInterval:   interval,
		LogLevel:          v.GetString("log_level"),
	}, nil
}
