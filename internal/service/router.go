package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/tracing"
)

// ThreadState classifies an incoming mention by what is known about its thread.
type ThreadState int

const (
	// NewThread is a top-level mention; a new conversation starts.
	NewThread ThreadState = iota
	// ExistingThreadKnownConversation is a thread reply whose conversation was found.
	ExistingThreadKnownConversation
	// ExistingThreadUnknownConversation is a thread reply without a usable marker.
	ExistingThreadUnknownConversation
)

func (s ThreadState) String() string {
	switch s {
	case NewThread:
		return "new_thread"
	case ExistingThreadKnownConversation:
		return "existing_thread_known_convo"
	case ExistingThreadUnknownConversation:
		return "existing_thread_unknown_convo"
	default:
		return fmt.Sprintf("thread_state(%d)", int(s))
	}
}

// ConversationResolver finds the conversation a thread is bound to.
type ConversationResolver interface {
	Resolve(ctx context.Context, channelID, threadRootTS, teamID string) (string, bool)
}

// Backend invokes the Dify app a channel is mapped to.
type Backend interface {
	Invoke(ctx context.Context, kind model.BackendKind, backendID, message, conversationID, user string) (model.BackendReply, error)
}

// ReplyPoster posts messages back to Slack.
type ReplyPoster interface {
	PostReply(ctx context.Context, reply model.OutgoingReply) error
}

// Router answers app mentions by relaying them to the mapped Dify app and
// keeps each Slack thread on one Dify conversation.
type Router struct {
	resolver ConversationResolver
	backend  Backend
	poster   ReplyPoster
	threads  *keyedMutex
	logger   *logger.Logger
}

// NewRouter creates a new router.
func NewRouter(resolver ConversationResolver, backend Backend, poster ReplyPoster, log *logger.Logger) *Router {
	return &Router{
		resolver: resolver,
		backend:  backend,
		poster:   poster,
		threads:  newKeyedMutex(),
		logger:   log,
	}
}

// HandleMention routes one app mention and posts the reply into its thread.
// Only a failure to post is returned; missing configuration and backend
// failures are turned into reply text.
//
// Mentions in the same thread are handled one at a time, so a reply posted
// while the thread's first answer is still pending waits for the marker that
// answer attaches.
func (r *Router) HandleMention(ctx context.Context, rc *RequestContext, ev model.IncomingEvent) error {
	ctx, span := tracing.Tracer().Start(ctx, "router.handle_mention")
	defer span.End()

	log := r.logger.WithEvent(ev.ChannelID, ev.UserID, ev.MessageTS)

	unlock := r.threads.Lock(ev.ChannelID + ":" + ev.ThreadTarget())
	defer unlock()

	state, conversationID := r.classify(ctx, rc, ev)
	span.SetAttributes(attribute.String("router.thread_state", state.String()))
	log = log.With(zap.Stringer("thread_state", state))

	mapping, err := rc.Lookup(ev.ChannelID)
	if err != nil {
		var nf *ConfigNotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		log.Info("no channel mapping", zap.String("reason", nf.Reason))
		return r.poster.PostReply(ctx, model.OutgoingReply{
			ChannelID: ev.ChannelID,
			ThreadTS:  ev.ThreadTarget(),
			Text:      nf.Error(),
		})
	}

	log.Info("starting workflow",
		zap.String("dify_type", string(mapping.Kind)),
		zap.String("dify_id", mapping.BackendID),
		zap.String("conversation_id", conversationID),
	)

	reply, err := r.backend.Invoke(ctx, mapping.Kind, mapping.BackendID, ev.Text, conversationID, ev.UserID)
	if err != nil {
		log.Error("dify invocation failed", zap.Error(err))
		reply = model.BackendReply{Answer: fmt.Sprintf("Exception: %v", err)}
	}

	out := model.OutgoingReply{
		ChannelID: ev.ChannelID,
		ThreadTS:  ev.ThreadTarget(),
		Text:      fmt.Sprintf("<@%s>, %s", ev.UserID, reply.Answer),
	}
	if state == NewThread && reply.ConversationID != "" {
		meta := model.ConversationAttachment{ConversationID: reply.ConversationID}.Metadata()
		out.Metadata = &meta
	}

	log.Debug("posting reply",
		zap.Bool("attaches_conversation", out.Metadata != nil),
		zap.String("reply_conversation_id", reply.ConversationID),
	)
	if err := r.poster.PostReply(ctx, out); err != nil {
		return fmt.Errorf("failed to post reply: %w", err)
	}
	return nil
}

// classify decides the thread state and the conversation to continue.
func (r *Router) classify(ctx context.Context, rc *RequestContext, ev model.IncomingEvent) (ThreadState, string) {
	if !ev.InThread() {
		return NewThread, ""
	}
	if id, ok := r.resolver.Resolve(ctx, ev.ChannelID, ev.ThreadRootTS, rc.TeamID); ok {
		return ExistingThreadKnownConversation, id
	}
	return ExistingThreadUnknownConversation, ""
}
