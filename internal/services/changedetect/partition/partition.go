// Package partition implements the distributed task partitioner (C8):
// hex-prefix shard acquisition and liveness over a shared KV store, so
// multiple worker instances can split a sweep without double-processing
// a shard.
package partition

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/store"

	"github.com/google/uuid"
)

const (
	staleAfter   = 24 * time.Hour
	takeoverAfter = 2 * time.Hour
)

// Partitioner claims and tracks hex-prefix shards against a shared KV
// store. One Partitioner is created per worker instance.
type Partitioner struct {
	kv         store.KVStore
	instanceID string
	prefixes   []string
}

// New builds a Partitioner with a fresh opaque instance id and the
// static list of hex-prefix shards of length L (default 1 -> 16 shards).
func New(kv store.KVStore, shardLength int) *Partitioner {
	if shardLength <= 0 {
		shardLength = 1
	}
	return &Partitioner{
		kv:         kv,
		instanceID: uuid.NewString(),
		prefixes:   generatePrefixes(shardLength),
	}
}

func generatePrefixes(length int) []string {
	total := 1
	for range length {
		total *= 16
	}
	out := make([]string, 0, total)
	for i := range total {
		out = append(out, fmt.Sprintf("%0*x", length, i))
	}
	return out
}

// InstanceID returns this partitioner's opaque worker identity.
func (p *Partitioner) InstanceID() string { return p.instanceID }

// Acquire scans shards in order and returns the first one claimable:
// claim an unlocked shard, steal a shard stale for more than 24h, or
// take over a shard whose progress has been stale for more than 2h
// (preserving start_time). Returns ("", false, nil) when no shard is
// available.
func (p *Partitioner) Acquire(ctx context.Context) (string, bool, error) {
	now := time.Now().UTC()

	for _, prefix := range p.prefixes {
		key := shardKey(prefix)
		fields, err := p.kv.HGetAll(ctx, key)
		if err != nil {
			return "", false, err
		}

		if fields["finish_time"] != "" {
			continue
		}

		lockOwner := fields["lock"]
		startTime := parseUnix(fields["start_time"])
		lastProgress := parseUnix(fields["last_progress_time"])

		switch {
		case lockOwner == "":
			if err := p.claim(ctx, key, now); err != nil {
				return "", false, err
			}
			return prefix, true, nil

		case now.Sub(startTime) > staleAfter:
			if err := p.claim(ctx, key, now); err != nil {
				return "", false, err
			}
			return prefix, true, nil

		case now.Sub(lastProgress) > takeoverAfter:
			if err := p.takeover(ctx, key, now); err != nil {
				return "", false, err
			}
			return prefix, true, nil
		}
	}

	return "", false, nil
}

// claim atomically sets lock, start_time, and last_progress_time
// together; both the fresh-claim and the stale-steal case reset all
// three.
func (p *Partitioner) claim(ctx context.Context, key string, now time.Time) error {
	return p.kv.HSet(ctx, key, map[string]any{
		"lock":                p.instanceID,
		"start_time":          strconv.FormatInt(now.Unix(), 10),
		"last_progress_time":  strconv.FormatInt(now.Unix(), 10),
	})
}

// takeover sets lock and last_progress_time but preserves start_time,
// so a resumed shard keeps its original clock.
func (p *Partitioner) takeover(ctx context.Context, key string, now time.Time) error {
	return p.kv.HSet(ctx, key, map[string]any{
		"lock":               p.instanceID,
		"last_progress_time": strconv.FormatInt(now.Unix(), 10),
	})
}

// UpdateProgress records periodic progress for a held shard.
func (p *Partitioner) UpdateProgress(ctx context.Context, prefix, progress string) error {
	return p.kv.HSet(ctx, shardKey(prefix), map[string]any{
		"progress":            progress,
		"last_progress_time":  strconv.FormatInt(time.Now().UTC().Unix(), 10),
	})
}

// Finish marks a shard complete.
func (p *Partitioner) Finish(ctx context.Context, prefix string) error {
	return p.kv.HSet(ctx, shardKey(prefix), map[string]any{
		"finish_time": strconv.FormatInt(time.Now().UTC().Unix(), 10),
	})
}

func shardKey(prefix string) string { return "task:" + prefix }

func parseUnix(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
