// Package model defines data structures for the Slack to Dify adapter.
package model

import (
	"strings"
)

// BackendKind identifies which Dify app type a channel is routed to.
type BackendKind string

const (
	BackendChatflow BackendKind = "chatflow"
	BackendWorkflow BackendKind = "workflow"
)

// Valid reports whether k is a known backend kind.
func (k BackendKind) Valid() bool {
	return k == BackendChatflow || k == BackendWorkflow
}

// ChannelMapping routes one Slack channel to a Dify app.
type ChannelMapping struct {
	ChannelID string      `json:"channel_id"`
	Kind      BackendKind `json:"dify_type"`
	BackendID string      `json:"dify_id"`
}

// ChannelConfig is the full ordered list of channel mappings, stored as a
// single JSON document.
type ChannelConfig []ChannelMapping

// Lookup returns the first mapping for channelID. Channel IDs are compared
// case-insensitively after trimming whitespace.
func (c ChannelConfig) Lookup(channelID string) (ChannelMapping, bool) {
	want := NormalizeChannelID(channelID)
	if want == "" {
		return ChannelMapping{}, false
	}
	for _, m := range c {
		if NormalizeChannelID(m.ChannelID) == want {
			return m, true
		}
	}
	return ChannelMapping{}, false
}

// Duplicates returns channel IDs that appear more than once. Only the first
// occurrence of each is ever used by Lookup.
func (c ChannelConfig) Duplicates() []string {
	seen := make(map[string]int, len(c))
	var dups []string
	for _, m := range c {
		id := NormalizeChannelID(m.ChannelID)
		if id == "" {
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}

// NormalizeChannelID canonicalizes a Slack channel ID. Slack IDs are upper
// case alphanumerics, so folding case never merges two distinct channels.
func NormalizeChannelID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
