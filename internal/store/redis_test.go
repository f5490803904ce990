package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "slackbot")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, ok, err := s.Get(ctx, "config")
	require.NoError(t, err)
	assert.False(t, ok)

	raw := []byte(`[{"channel_id":"C1","dify_type":"chatflow","dify_id":"A1"}]`)
	require.NoError(t, s.Set(ctx, "config", raw))

	got, ok, err := s.Get(ctx, "config")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raw, got)

	stored, err := mr.Get("slackbot:config")
	require.NoError(t, err)
	assert.Equal(t, string(raw), stored)

	assert.NoError(t, s.Ping(ctx))
}

func TestRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not a url", "")
	assert.Error(t, err)
}
