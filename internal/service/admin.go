package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/metrics"
)

// Admin command markers and replies.
const (
	cmdGetConfig = "get config"
	cmdSetConfig = "set config "

	replyNotAdmin      = "Not an admin, sorry."
	replyNoConfig      = "No config found."
	replyConfigSaved   = "Config saved!"
	replyInvalidConfig = "Invalid JSON, try again."
)

// slackUnescaper reverses the entity escaping Slack applies to message text.
var slackUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// AdminService handles configuration commands sent to the bot by direct message.
type AdminService struct {
	config *ConfigService
	poster ReplyPoster
	logger *logger.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(config *ConfigService, poster ReplyPoster, log *logger.Logger) *AdminService {
	return &AdminService{
		config: config,
		poster: poster,
		logger: log,
	}
}

// HandleDirectMessage interprets a DM. Senders outside the admin allowlist
// get a refusal; messages that are not a command get no reply.
func (s *AdminService) HandleDirectMessage(ctx context.Context, rc *RequestContext, ev model.IncomingEvent) error {
	log := s.logger.WithEvent(ev.ChannelID, ev.UserID, ev.MessageTS)

	if !rc.IsAdmin(ev.UserID) {
		log.Info("direct message from non-admin")
		metrics.RecordAdminCommand("any", "denied")
		return s.say(ctx, ev, replyNotAdmin)
	}

	switch {
	case strings.Contains(ev.Text, cmdGetConfig):
		return s.getConfig(ctx, log, ev)
	case strings.Contains(ev.Text, cmdSetConfig):
		_, payload, _ := strings.Cut(ev.Text, cmdSetConfig)
		return s.setConfig(ctx, log, ev, payload)
	default:
		metrics.RecordAdminCommand("unknown", "ignored")
		return nil
	}
}

func (s *AdminService) getConfig(ctx context.Context, log *logger.Logger, ev model.IncomingEvent) error {
	raw, ok, err := s.config.Raw(ctx)
	if err != nil {
		log.Error("failed to read config", zap.Error(err))
	}
	if err != nil || !ok || len(raw) == 0 {
		metrics.RecordAdminCommand("get_config", "empty")
		return s.say(ctx, ev, replyNoConfig)
	}

	metrics.RecordAdminCommand("get_config", "ok")
	return s.say(ctx, ev, string(raw))
}

func (s *AdminService) setConfig(ctx context.Context, log *logger.Logger, ev model.IncomingEvent, payload string) error {
	raw := []byte(slackUnescaper.Replace(payload))

	err := s.config.Save(ctx, raw)
	var invalid *InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		log.Info("rejected invalid config", zap.Error(invalid.Err))
		metrics.RecordAdminCommand("set_config", "invalid")
		return s.say(ctx, ev, fmt.Sprintf("%s: %v", replyInvalidConfig, invalid.Err))
	case err != nil:
		log.Error("failed to save config", zap.Error(err))
		metrics.RecordAdminCommand("set_config", "error")
		return s.say(ctx, ev, fmt.Sprintf("Failed to save config: %v", err))
	}

	log.Info("config saved", zap.Int("bytes", len(raw)))
	metrics.RecordAdminCommand("set_config", "ok")
	return s.say(ctx, ev, replyConfigSaved)
}

// say replies in the DM channel itself, outside any thread.
func (s *AdminService) say(ctx context.Context, ev model.IncomingEvent, text string) error {
	if err := s.poster.PostReply(ctx, model.OutgoingReply{ChannelID: ev.ChannelID, Text: text}); err != nil {
		return fmt.Errorf("failed to post admin reply: %w", err)
	}
	return nil
}
