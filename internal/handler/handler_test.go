package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/internal/service"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
)

const testSigningSecret = "signing-secret"

var testLogger = logger.NewNop()

// syncDispatcher runs jobs inline.
type syncDispatcher struct{ jobs int }

func (d *syncDispatcher) Go(f func()) {
	d.jobs++
	f()
}

type fakeLoader struct {
	cfg   model.ChannelConfig
	ok    bool
	calls int
}

func (f *fakeLoader) Load(context.Context) (model.ChannelConfig, bool) {
	f.calls++
	return f.cfg, f.ok
}

type handledEvent struct {
	rc *service.RequestContext
	ev model.IncomingEvent
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []handledEvent
	err    error
}

func (f *fakeEventSink) record(rc *service.RequestContext, ev model.IncomingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, handledEvent{rc: rc, ev: ev})
	return f.err
}

func (f *fakeEventSink) HandleMention(_ context.Context, rc *service.RequestContext, ev model.IncomingEvent) error {
	return f.record(rc, ev)
}

func (f *fakeEventSink) HandleDirectMessage(_ context.Context, rc *service.RequestContext, ev model.IncomingEvent) error {
	return f.record(rc, ev)
}

// signedRequest builds a POST signed the way Slack signs webhook deliveries.
func signedRequest(body string, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	signRequest(req, body, secret)
	return req
}

func signRequest(req *http.Request, body string, secret string) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}
