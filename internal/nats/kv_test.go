package nats

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertDiep/dify-slackbot/pkg/logger"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	s := runJetStream(t)

	client, err := Connect(ctx, Config{URL: s.ClientURL()}, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	kv, err := NewKVStore(ctx, client, "slackbot")
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, "config")
	require.NoError(t, err)
	assert.False(t, ok)

	doc := []byte(`[{"channel_id":"C1","dify_type":"chatflow","dify_id":"A1"}]`)
	require.NoError(t, kv.Set(ctx, "config", doc))
	require.NoError(t, kv.Set(ctx, "config", []byte(`[]`)))
	require.NoError(t, kv.Set(ctx, "config", doc))

	got, ok, err := kv.Get(ctx, "config")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc, got)

	// Opening the bucket again finds the existing one.
	reopened, err := NewKVStore(ctx, client, "slackbot")
	require.NoError(t, err)
	got, ok, err = reopened.Get(ctx, "config")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc, got)

	assert.NoError(t, kv.Ping(ctx))
	client.Close()
	assert.Error(t, kv.Ping(ctx))
}

func TestConnectUnreachable(t *testing.T) {
	s := runJetStream(t)
	url := s.ClientURL()
	s.Shutdown()

	_, err := Connect(context.Background(), Config{URL: url}, logger.NewNop())
	assert.Error(t, err)
}
