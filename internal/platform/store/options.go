package store

import "github.com/rs/zerolog"

// Option customizes a Store before backends are opened.
type Option func(*Store) error

// WithLogger sets the logger used by the store and its opened backends.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) error {
		s.Log = l
		return nil
	}
}
