package model

import (
	"strings"
)

const (
	// ConversationStartedEvent is the metadata event type attached to the
	// first bot reply of a thread.
	ConversationStartedEvent = "dify_conversation_started"

	// ConversationIDPayloadKey holds the Dify conversation ID in the event payload.
	ConversationIDPayloadKey = "dify_conversation_id"
)

// MessageMetadata is Slack message metadata as sent and received by the API.
type MessageMetadata struct {
	EventType    string         `json:"event_type"`
	EventPayload map[string]any `json:"event_payload,omitempty"`
}

// ConversationAttachment binds a Slack thread to a Dify conversation. It is
// only ever persisted as metadata on a Slack message.
type ConversationAttachment struct {
	ConversationID string
}

// Metadata renders the attachment as Slack message metadata.
func (a ConversationAttachment) Metadata() MessageMetadata {
	return MessageMetadata{
		EventType: ConversationStartedEvent,
		EventPayload: map[string]any{
			ConversationIDPayloadKey: a.ConversationID,
		},
	}
}

// AttachmentFromMetadata parses a conversation attachment back out of message
// metadata. It returns false for other event types and for markers without a
// usable conversation ID.
func AttachmentFromMetadata(meta *MessageMetadata) (ConversationAttachment, bool) {
	if meta == nil || meta.EventType != ConversationStartedEvent || meta.EventPayload == nil {
		return ConversationAttachment{}, false
	}
	id, ok := meta.EventPayload[ConversationIDPayloadKey].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return ConversationAttachment{}, false
	}
	return ConversationAttachment{ConversationID: id}, true
}

// ThreadMessage is one entry of a thread history page.
type ThreadMessage struct {
	TS       string
	User     string
	BotID    string
	Text     string
	Metadata *MessageMetadata
}

// BackendReply is the normalized answer of a Dify invocation.
type BackendReply struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
}
