package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// KVStore stores values in a JetStream key-value bucket.
type KVStore struct {
	client *Client
	kv     jetstream.KeyValue
}

// NewKVStore opens the bucket, creating it on first use. Only the latest
// revision of each key is kept since the document is always replaced whole.
func NewKVStore(ctx context.Context, client *Client, bucket string) (*KVStore, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Slack channel to Dify app configuration",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket %q: %w", bucket, err)
	}

	return &KVStore{client: client, kv: kv}, nil
}

// Get returns the latest value under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set replaces the value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Ping reports whether the NATS connection is up.
func (s *KVStore) Ping(context.Context) error {
	if !s.client.IsConnected() {
		return errors.New("NATS not connected")
	}
	return nil
}
