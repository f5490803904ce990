package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/metrics"
	"github.com/RobertDiep/dify-slackbot/pkg/tracing"
)

// HistoryPageSize bounds how many thread entries are scanned for a marker.
const HistoryPageSize = 10

// ThreadReader fetches the replies of a thread, oldest first.
type ThreadReader interface {
	Replies(ctx context.Context, channelID, threadTS string, limit int) ([]model.ThreadMessage, error)
}

// HistoryResolver recovers the Dify conversation a thread belongs to from
// the conversation marker attached to one of its messages.
type HistoryResolver struct {
	reader ThreadReader
	logger *logger.Logger
}

// NewHistoryResolver creates a resolver reading threads through reader.
func NewHistoryResolver(reader ThreadReader, log *logger.Logger) *HistoryResolver {
	return &HistoryResolver{
		reader: reader,
		logger: log,
	}
}

// Resolve returns the conversation ID of the first marker in the thread. A
// failed fetch is logged and reported as no known conversation.
func (r *HistoryResolver) Resolve(ctx context.Context, channelID, threadRootTS, teamID string) (string, bool) {
	ctx, span := tracing.Tracer().Start(ctx, "history.resolve")
	defer span.End()

	log := r.logger.With(
		zap.String("channel_id", channelID),
		zap.String("thread_ts", threadRootTS),
		zap.String("team_id", teamID),
	)

	msgs, err := r.reader.Replies(ctx, channelID, threadRootTS, HistoryPageSize)
	if err != nil {
		log.Warn("failed to fetch thread history, starting a new conversation", zap.Error(err))
		metrics.RecordHistoryLookup("error")
		span.SetAttributes(attribute.String("history.result", "error"))
		return "", false
	}

	id, ok := FindConversationID(msgs)
	result := "miss"
	if ok {
		result = "hit"
	}
	log.Debug("scanned thread history",
		zap.Int("messages", len(msgs)),
		zap.String("result", result),
		zap.String("conversation_id", id),
	)
	metrics.RecordHistoryLookup(result)
	span.SetAttributes(attribute.String("history.result", result))
	return id, ok
}

// FindConversationID scans msgs in order and returns the conversation ID of
// the first well-formed marker. Malformed markers are skipped.
func FindConversationID(msgs []model.ThreadMessage) (string, bool) {
	for _, m := range msgs {
		if att, ok := model.AttachmentFromMetadata(m.Metadata); ok {
			return att.ConversationID, true
		}
	}
	return "", false
}
