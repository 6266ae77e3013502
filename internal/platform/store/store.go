// Package store provides a unified interface to optional storage backends.
// The sweep engine only ever needs one: the shared KV seam backing
// distributed shard coordination.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/logger"
)

// Store is the facade for optional backends.
// Zero value is safe but does nothing.
type Store struct {
	// Log is the logger used by subclients
	// zero means a no op zerolog logger
	Log logger.Logger

	// KV is the shared key-value seam, nil when disabled
	KV KVStore
}

// KVStore is the minimal shared key-value surface the task partitioner needs:
// atomic hash field reads/writes keyed by shard. Redis is the only backend
// today but the seam is narrow enough that any HSET/HGETALL-capable store
// could stand in.
type KVStore interface {
	// HGetAll returns all fields of a hash key. A missing key returns an
	// empty, non-nil map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet atomically writes the given fields to a hash key.
	HSet(ctx context.Context, key string, fields map[string]any) error

	Ping(ctx context.Context) error
	Close() error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// Open constructs a Store with the requested backends.
// Backends not enabled in cfg remain nil on the Store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	// defaults for zero logger to avoid nil checks
	s.Log = s.Log.With().Logger()

	if cfg.RDS.Enabled {
		kv, err := openRedis(ctx, cfg.RDS, s)
		if err != nil {
			return nil, err
		}
		s.KV = kv
	}

	return s, nil
}

// Guard verifies all configured seams the Store knows about.
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	if s.KV != nil {
		if err := s.KV.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kv: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all initialized backends gracefully.
// Nil backends are ignored.
func (s *Store) Close(ctx context.Context) error {
	_ = ctx
	var errs []error
	if s.KV != nil {
		if e := s.KV.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}
