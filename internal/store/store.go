// Package store provides byte-oriented key-value backends for the channel
// configuration document.
package store

import (
	"context"
)

// KV is a byte-addressed key-value store.
type KV interface {
	// Get returns the value under key. The bool is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
