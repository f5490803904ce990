package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/middleware"
	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/internal/service"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/metrics"
)

// maxEventBody bounds the size of a Slack event envelope.
const maxEventBody = 1 << 20

// Event outcomes recorded in metrics.
const (
	outcomeAccepted = "accepted"
	outcomeIgnored  = "ignored"
	outcomeRetry    = "retry"
	outcomeInvalid  = "invalid"
	outcomeHandled  = "handled"
	outcomeFailed   = "failed"
)

// Dispatcher runs event jobs in the background. *pool.Pool satisfies it.
type Dispatcher interface {
	Go(f func())
}

// ConfigLoader loads the channel configuration for one event.
type ConfigLoader interface {
	Load(ctx context.Context) (model.ChannelConfig, bool)
}

// MentionRouter answers app mentions.
type MentionRouter interface {
	HandleMention(ctx context.Context, rc *service.RequestContext, ev model.IncomingEvent) error
}

// DirectMessageHandler answers direct messages.
type DirectMessageHandler interface {
	HandleDirectMessage(ctx context.Context, rc *service.RequestContext, ev model.IncomingEvent) error
}

// EventsOptions configures an EventsHandler.
type EventsOptions struct {
	SigningSecret string
	Admins        []string
	EventTimeout  time.Duration
}

// EventsHandler receives the Slack Events API webhook.
type EventsHandler struct {
	opts       EventsOptions
	config     ConfigLoader
	router     MentionRouter
	admin      DirectMessageHandler
	dispatcher Dispatcher
	logger     *logger.Logger

	// submitting tracks jobs handed off but not yet accepted by the dispatcher.
	submitting sync.WaitGroup
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(
	opts EventsOptions,
	config ConfigLoader,
	router MentionRouter,
	admin DirectMessageHandler,
	dispatcher Dispatcher,
	log *logger.Logger,
) *EventsHandler {
	return &EventsHandler{
		opts:       opts,
		config:     config,
		router:     router,
		admin:      admin,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// envelopeExtras holds the envelope fields the typed events do not expose.
type envelopeExtras struct {
	Authorizations []struct {
		UserID string `json:"user_id"`
	} `json:"authorizations"`
	Event struct {
		ParentUserID string `json:"parent_user_id"`
	} `json:"event"`
}

// isDirectMessage reports whether the event was addressed to the installing
// app's own user.
func (e envelopeExtras) isDirectMessage() bool {
	if len(e.Authorizations) == 0 {
		return false
	}
	authorized := e.Authorizations[0].UserID
	return authorized != "" && authorized == e.Event.ParentUserID
}

// Verify handles GET /slack/events. It is accepted and does nothing.
func (h *EventsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Handle handles POST /slack/events.
func (h *EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxEventBody {
		writeError(w, http.StatusBadRequest, "body too large")
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		h.logger.Warn("rejected unsigned slack request", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("failed to parse slack event", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	if event.Type == slackevents.URLVerification {
		var challenge struct {
			Challenge string `json:"challenge"`
		}
		if err := json.Unmarshal(body, &challenge); err != nil {
			writeError(w, http.StatusBadRequest, "invalid challenge")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge.Challenge))
		return
	}

	if event.Type != slackevents.CallbackEvent {
		metrics.RecordEvent(event.Type, outcomeIgnored)
		w.WriteHeader(http.StatusOK)
		return
	}

	innerType := event.InnerEvent.Type
	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		h.logger.Info("acknowledged slack retry without processing",
			zap.String("event_type", innerType),
			zap.String("retry_num", retry),
			zap.String("retry_reason", r.Header.Get("X-Slack-Retry-Reason")),
		)
		metrics.RecordEvent(innerType, outcomeRetry)
		w.WriteHeader(http.StatusOK)
		return
	}

	var extras envelopeExtras
	if err := json.Unmarshal(body, &extras); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	job, ev, outcome := h.route(event, extras)
	if job == nil {
		metrics.RecordEvent(innerType, outcome)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
	metrics.RecordEvent(innerType, outcomeAccepted)
	h.dispatch(r.Context(), innerType, ev, job)
}

func (h *EventsHandler) verifySignature(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.opts.SigningSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

type eventJob func(ctx context.Context) error

// route turns a callback event into a job. A nil job means the event is
// acknowledged and dropped, for the returned reason.
func (h *EventsHandler) route(event slackevents.EventsAPIEvent, extras envelopeExtras) (eventJob, model.IncomingEvent, string) {
	switch e := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		ev := model.IncomingEvent{
			TeamID:       event.TeamID,
			ChannelID:    e.Channel,
			UserID:       e.User,
			Text:         e.Text,
			MessageTS:    e.TimeStamp,
			ThreadRootTS: e.ThreadTimeStamp,
		}
		if !h.valid(ev) {
			return nil, ev, outcomeInvalid
		}
		return func(ctx context.Context) error {
			cfg, configured := h.config.Load(ctx)
			rc := &service.RequestContext{
				TeamID:     ev.TeamID,
				Config:     cfg,
				Configured: configured,
				Admins:     h.opts.Admins,
			}
			return h.router.HandleMention(ctx, rc, ev)
		}, ev, ""

	case *slackevents.MessageEvent:
		if e.BotID != "" || e.SubType != "" {
			return nil, model.IncomingEvent{}, outcomeIgnored
		}
		if !extras.isDirectMessage() {
			return nil, model.IncomingEvent{}, outcomeIgnored
		}
		ev := model.IncomingEvent{
			TeamID:       event.TeamID,
			ChannelID:    e.Channel,
			UserID:       e.User,
			Text:         e.Text,
			MessageTS:    e.TimeStamp,
			ThreadRootTS: e.ThreadTimeStamp,
		}
		if !h.valid(ev) {
			return nil, ev, outcomeInvalid
		}
		return func(ctx context.Context) error {
			rc := &service.RequestContext{
				TeamID: ev.TeamID,
				Admins: h.opts.Admins,
			}
			return h.admin.HandleDirectMessage(ctx, rc, ev)
		}, ev, ""

	default:
		return nil, model.IncomingEvent{}, outcomeIgnored
	}
}

func (h *EventsHandler) valid(ev model.IncomingEvent) bool {
	if err := middleware.ValidateEvent(ev); err != nil {
		h.logger.Warn("dropping incomplete slack event", zap.Error(err))
		return false
	}
	return true
}

// dispatch hands job to a worker. The job outlives the request, so it keeps
// the request's values but not its cancellation.
func (h *EventsHandler) dispatch(reqCtx context.Context, eventType string, ev model.IncomingEvent, job eventJob) {
	base := context.WithoutCancel(reqCtx)
	log := h.logger.WithEvent(ev.ChannelID, ev.UserID, ev.MessageTS).With(
		zap.String("event_type", eventType),
		zap.String("request_id", middleware.GetRequestID(reqCtx)),
	)

	// Go blocks while the dispatcher is full, so hand off outside the request.
	h.submitting.Add(1)
	go func() {
		defer h.submitting.Done()
		h.dispatcher.Go(func() {
			metrics.EventsInFlight.Inc()
			defer metrics.EventsInFlight.Dec()

			ctx, cancel := context.WithTimeout(base, h.opts.EventTimeout)
			defer cancel()

			if err := runJob(ctx, job); err != nil {
				log.Error("event processing failed", zap.Error(err))
				metrics.RecordEvent(eventType, outcomeFailed)
				return
			}
			metrics.RecordEvent(eventType, outcomeHandled)
		})
	}()
}

// Wait blocks until every accepted event has been handed to the dispatcher.
// Call it after the server stops taking requests and before draining the
// dispatcher.
func (h *EventsHandler) Wait() {
	h.submitting.Wait()
}

func runJob(ctx context.Context, job eventJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	err = job(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("event timed out: %w", err)
	}
	return err
}
