package service

import (
	"github.com/RobertDiep/dify-slackbot/internal/model"
)

// RequestContext carries the state of one webhook invocation. It is built by
// the ingress for every request and passed down by parameter; nothing in it is
// shared between requests.
type RequestContext struct {
	TeamID string

	// Config is the channel configuration snapshot read for this request.
	// Configured is false when nothing usable was stored.
	Config     model.ChannelConfig
	Configured bool

	Admins []string
}

// IsAdmin reports whether userID is in the admin allowlist.
func (rc *RequestContext) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range rc.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Lookup returns the mapping for channelID or a *ConfigNotFoundError.
func (rc *RequestContext) Lookup(channelID string) (model.ChannelMapping, error) {
	if !rc.Configured {
		return model.ChannelMapping{}, &ConfigNotFoundError{ChannelID: channelID, Reason: msgUnconfigured}
	}
	m, ok := rc.Config.Lookup(channelID)
	if !ok {
		return model.ChannelMapping{}, &ConfigNotFoundError{ChannelID: channelID, Reason: msgChannelNotFound}
	}
	return m, nil
}
