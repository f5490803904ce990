package model

// IncomingEvent is the normalized view of an app mention or direct message.
type IncomingEvent struct {
	TeamID       string `json:"team_id"`
	ChannelID    string `json:"channel_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
	Text         string `json:"text"`
	MessageTS    string `json:"message_ts" validate:"required"`
	ThreadRootTS string `json:"thread_root_ts,omitempty"`
}

// InThread reports whether the event was posted as a thread reply.
func (e IncomingEvent) InThread() bool {
	return e.ThreadRootTS != ""
}

// ThreadTarget returns the timestamp replies to this event are threaded under.
func (e IncomingEvent) ThreadTarget() string {
	if e.ThreadRootTS != "" {
		return e.ThreadRootTS
	}
	return e.MessageTS
}

// OutgoingReply is a message the bot posts back to Slack.
type OutgoingReply struct {
	ChannelID string
	ThreadTS  string
	Text      string
	Metadata  *MessageMetadata
}
