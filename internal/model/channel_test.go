package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelConfigLookup(t *testing.T) {
	cfg := ChannelConfig{
		{ChannelID: "C1", Kind: BackendChatflow, BackendID: "app-1"},
		{ChannelID: "C2", Kind: BackendWorkflow, BackendID: "app-2"},
		{ChannelID: "c2", Kind: BackendChatflow, BackendID: "app-3"},
		{ChannelID: " C4 ", Kind: BackendChatflow, BackendID: "app-4"},
	}

	tests := []struct {
		name    string
		channel string
		want    string
		found   bool
	}{
		{name: "first entry", channel: "C1", want: "app-1", found: true},
		{name: "first duplicate wins", channel: "C2", want: "app-2", found: true},
		{name: "case folded", channel: "c1", want: "app-1", found: true},
		{name: "trimmed", channel: "C4", want: "app-4", found: true},
		{name: "missing", channel: "C9", found: false},
		{name: "empty", channel: "", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := cfg.Lookup(tt.channel)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, m.BackendID)
		})
	}
}

func TestChannelConfigLookupKth(t *testing.T) {
	var cfg ChannelConfig
	for _, id := range []string{"CA", "CB", "CC", "CD", "CE"} {
		cfg = append(cfg, ChannelMapping{ChannelID: id, Kind: BackendChatflow, BackendID: "app-" + id})
	}
	for k, m := range cfg {
		got, ok := cfg.Lookup(m.ChannelID)
		require.True(t, ok, "mapping %d", k)
		assert.Equal(t, cfg[k], got)
	}
}

func TestChannelConfigDuplicates(t *testing.T) {
	cfg := ChannelConfig{
		{ChannelID: "C1"}, {ChannelID: "c1"}, {ChannelID: "C1"}, {ChannelID: "C2"}, {ChannelID: ""}, {ChannelID: ""},
	}
	assert.Equal(t, []string{"C1"}, cfg.Duplicates())
}

func TestChannelConfigJSON(t *testing.T) {
	raw := `[{"channel_id":"C1","dify_type":"chatflow","dify_id":"A1"}]`
	var cfg ChannelConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	require.Len(t, cfg, 1)
	assert.Equal(t, ChannelMapping{ChannelID: "C1", Kind: BackendChatflow, BackendID: "A1"}, cfg[0])
	assert.True(t, cfg[0].Kind.Valid())
	assert.False(t, BackendKind("agent").Valid())
}
