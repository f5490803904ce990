// Package slackapi wraps the Slack Web API calls the bot makes.
package slackapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/RobertDiep/dify-slackbot/internal/model"
)

// Options configures a Client.
type Options struct {
	Token string
	// APIURL overrides the Web API root. It must end with a slash.
	APIURL string
	// Timeout bounds each API call.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client reads thread history and posts replies.
type Client struct {
	api     *slack.Client
	timeout time.Duration
}

// New creates a Slack Web API client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	slackOpts := []slack.Option{slack.OptionHTTPClient(httpClient)}
	if base := strings.TrimSpace(opts.APIURL); base != "" {
		slackOpts = append(slackOpts, slack.OptionAPIURL(strings.TrimRight(base, "/")+"/"))
	}

	return &Client{
		api:     slack.New(opts.Token, slackOpts...),
		timeout: opts.Timeout,
	}
}

// Replies returns up to limit messages of a thread, oldest first, with any
// attached message metadata.
func (c *Client) Replies(ctx context.Context, channelID, threadTS string, limit int) ([]model.ThreadMessage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID:          channelID,
		Timestamp:          threadTS,
		Limit:              limit,
		IncludeAllMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.replies: %w", err)
	}

	out := make([]model.ThreadMessage, 0, len(msgs))
	for _, m := range msgs {
		tm := model.ThreadMessage{
			TS:    m.Timestamp,
			User:  m.User,
			BotID: m.BotID,
			Text:  m.Text,
		}
		if m.Metadata.EventType != "" {
			tm.Metadata = &model.MessageMetadata{
				EventType:    m.Metadata.EventType,
				EventPayload: m.Metadata.EventPayload,
			}
		}
		out = append(out, tm)
	}
	return out, nil
}

// PostReply posts a plain text message, threaded when ThreadTS is set.
func (c *Client) PostReply(ctx context.Context, reply model.OutgoingReply) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := []slack.MsgOption{slack.MsgOptionText(reply.Text, false)}
	if reply.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(reply.ThreadTS))
	}
	if reply.Metadata != nil {
		opts = append(opts, slack.MsgOptionMetadata(slack.SlackMetadata{
			EventType:    reply.Metadata.EventType,
			EventPayload: reply.Metadata.EventPayload,
		}))
	}

	if _, _, err := c.api.PostMessageContext(ctx, reply.ChannelID, opts...); err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
