// Package hostsched provides the per-host rate limiting, per-host
// concurrency caps, global connection cap, and host-fair scheduling
// transform that both probers (C4/C5) run their work through.
package hostsched

import (
	"context"
	"sort"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config tunes the scheduler. Zero values fall back to spec.md §4.2 defaults.
type Config struct {
	// RequestsPerSecond is R, the per-host token bucket rate. Default 4.
	RequestsPerSecond float64
	// MaxConcurrentPerHost is K, the per-host semaphore size. Default 10.
	MaxConcurrentPerHost int
	// GlobalCap is the process-wide connection cap. Default 100.
	GlobalCap int
}

func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
	if c.MaxConcurrentPerHost <= 0 {
		c.MaxConcurrentPerHost = 10
	}
	if c.GlobalCap <= 0 {
		c.GlobalCap = 100
	}
	return c
}

type hostGate struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// Scheduler dispatches work items keyed by host, honoring per-host rate
// limits, per-host concurrency, and a global connection cap.
type Scheduler struct {
	cfg    Config
	global *semaphore.Weighted
	hosts  map[string]*hostGate
}

// New builds a Scheduler pre-sized for the given set of distinct hosts
// (the caller passes Table.DistinctNetlocs()). Hosts seen later that
// weren't pre-sized get a gate lazily.
func New(cfg Config, netlocs []string) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:    cfg,
		global: semaphore.NewWeighted(int64(cfg.GlobalCap)),
		hosts:  make(map[string]*hostGate, len(netlocs)),
	}
	for _, n := range netlocs {
		s.hosts[n] = s.newGate()
	}
	return s
}

func (s *Scheduler) newGate() *hostGate {
	return &hostGate{
		limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), 1),
		sem:     make(chan struct{}, s.cfg.MaxConcurrentPerHost),
	}
}

func (s *Scheduler) gate(host string) *hostGate {
	g, ok := s.hosts[host]
	if !ok {
		g = s.newGate()
		s.hosts[host] = g
	}
	return g
}

// Acquire blocks until a slot for host is available: a rate-limit token,
// a per-host concurrency slot, and a global connection slot, in that
// order so a saturated host never starves the global cap for other
// hosts' traffic. Release must be called exactly once after the probe
// completes.
func (s *Scheduler) Acquire(ctx context.Context, host string) (release func(), err error) {
	g := s.gate(host)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := s.global.Acquire(ctx, 1); err != nil {
		<-g.sem
		return nil, err
	}

	return func() {
		s.global.Release(1)
		<-g.sem
	}, nil
}

// Item is any unit of scheduled work keyed by host.
type Item interface {
	Host() string
}

// ListDistribute produces a permuted ordering of items whose successive
// elements have maximally-different hosts: a round-robin over per-host
// buckets, longest bucket first. This spreads bursts across hosts
// instead of head-of-lining behind one slow host's items.
func ListDistribute[T Item](items []T) []T {
	buckets := make(map[string][]T)
	var hostsInFirstSeenOrder []string
	for _, it := range items {
		h := it.Host()
		if _, ok := buckets[h]; !ok {
			hostsInFirstSeenOrder = append(hostsInFirstSeenOrder, h)
		}
		buckets[h] = append(buckets[h], it)
	}

	sort.SliceStable(hostsInFirstSeenOrder, func(i, j int) bool {
		return len(buckets[hostsInFirstSeenOrder[i]]) > len(buckets[hostsInFirstSeenOrder[j]])
	})

	out := make([]T, 0, len(items))
	for {
		progressed := false
		for _, h := range hostsInFirstSeenOrder {
			b := buckets[h]
			if len(b) == 0 {
				continue
			}
			out = append(out, b[0])
			buckets[h] = b[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}
