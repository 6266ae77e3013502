package store

import "time"

// Config aggregates per-backend configuration.
// The sweep only needs the shared KV seam (Redis) for distributed shard
// coordination; the catalog itself is an external collaborator reached
// through domain ports, not through this package.
type Config struct {
	AppName string

	RDS RedisConfig
}

// RedisConfig configures redis connectivity for the shared KV store used by
// the task partitioner (internal/services/changedetect/partition).
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int

	// Guard/boot knobs:
	ConnectRetries int           // default 6 (~6s max with exponential backoff)
	PingTimeout    time.Duration // default 3s
}
