package module

import (
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/config"
)

// Options holds every tunable a sweep reads: the recognized
// configuration values plus the rate/concurrency/backoff defaults.
type Options struct {
	UserAgent string

	RequestsPerSecond    float64
	MaxConcurrentPerHost int
	GlobalConnectionCap  int

	RetryExpBase      float64
	RetryMultiplier   float64
	RetryMinWait      time.Duration
	RetryMinMultiplier float64
	RetryMaxAttempts  int

	HeadSockConnectWait time.Duration
	HeadTotalWait       time.Duration
	GetTotalWait        time.Duration

	SaveDownloaded bool
	UseSaved       bool
	FixtureDir     string
	CSVPath        string
	Revise         bool

	UseDistributed bool
	ShardLength    int
	// SharedKVURL is the spec.md §6 shared_kv_url value: a redis:// URL
	// (scheme, optional auth, host:port, optional /db). cmd/changedetect
	// parses it with redis.ParseURL to build the actual store.RedisConfig
	// the distributed partitioner connects through. Only the host:port
	// address and the DB number are carried over; credentials in the URL
	// are not used.
	SharedKVURL string

	NetlocsIgnore []string
	FormatsIgnore []string
	URLIgnore     string
}

// FromConfig reads sweep options from config with CHANGEDETECT_ prefix.
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CHANGEDETECT_")
	return Options{
		UserAgent: c.MayString("USER_AGENT", "hdx-resource-changedetection/1.0"),

		RequestsPerSecond:    c.MayFloat64("REQUESTS_PER_SECOND", 4),
		MaxConcurrentPerHost: c.MayInt("MAX_CONCURRENT_PER_HOST", 10),
		GlobalConnectionCap:  c.MayInt("GLOBAL_CONNECTION_CAP", 100),

		RetryExpBase:       c.MayFloat64("RETRY_EXP_BASE", 2),
		RetryMultiplier:    c.MayFloat64("RETRY_MULTIPLIER", 2),
		RetryMinWait:       c.MayDuration("RETRY_MIN_WAIT", 4*time.Second),
		RetryMinMultiplier: c.MayFloat64("RETRY_MIN_MULTIPLIER", 8),
		RetryMaxAttempts:   c.MayInt("RETRY_MAX_ATTEMPTS", 3),

		HeadSockConnectWait: c.MayDuration("HEAD_SOCK_CONNECT_WAIT", 30*time.Second),
		HeadTotalWait:       c.MayDuration("HEAD_TOTAL_WAIT", 5*time.Minute),
		GetTotalWait:        c.MayDuration("GET_TOTAL_WAIT", 60*time.Minute),

		SaveDownloaded: c.MayBool("SAVE_DOWNLOADED", false),
		UseSaved:       c.MayBool("USE_SAVED", false),
		FixtureDir:     c.MayString("FIXTURE_DIR", "./changedetect-fixtures"),
		CSVPath:        c.MayString("CSV_PATH", ""),
		Revise:         c.MayBool("REVISE", false),

		UseDistributed: c.MayBool("USE_DISTRIBUTED", false),
		ShardLength:    c.MayInt("SHARD_LENGTH", 1),
		SharedKVURL:    c.MayString("SHARED_KV_URL", "redis://localhost:6379/0"),

		NetlocsIgnore: c.MayCSV("NETLOCS_IGNORE", nil),
		FormatsIgnore: c.MayCSV("FORMATS_IGNORE", []string{"web app"}),
		URLIgnore:     c.MayString("URL_IGNORE", ""),
	}
}
