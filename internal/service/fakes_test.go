package service

import (
	"context"
	"errors"
	"sync"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/internal/store"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
)

var testLogger = logger.NewNop()

// countingKV wraps a MemoryStore and counts calls.
type countingKV struct {
	*store.MemoryStore
	mu     sync.Mutex
	gets   int
	sets   int
	getErr error
	setErr error
}

func newCountingKV() *countingKV {
	return &countingKV{MemoryStore: store.NewMemoryStore()}
}

func (k *countingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	k.gets++
	err := k.getErr
	k.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return k.MemoryStore.Get(ctx, key)
}

func (k *countingKV) Set(ctx context.Context, key string, value []byte) error {
	k.mu.Lock()
	k.sets++
	err := k.setErr
	k.mu.Unlock()
	if err != nil {
		return err
	}
	return k.MemoryStore.Set(ctx, key, value)
}

func (k *countingKV) counts() (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.gets, k.sets
}

// fakeThreadReader returns a canned history page.
type fakeThreadReader struct {
	msgs  []model.ThreadMessage
	err   error
	calls []replyCall
}

type replyCall struct {
	channelID, threadTS string
	limit               int
}

func (f *fakeThreadReader) Replies(_ context.Context, channelID, threadTS string, limit int) ([]model.ThreadMessage, error) {
	f.calls = append(f.calls, replyCall{channelID: channelID, threadTS: threadTS, limit: limit})
	return f.msgs, f.err
}

// fakeResolver records lookups and returns a fixed answer.
type fakeResolver struct {
	id    string
	found bool
	calls int
}

func (f *fakeResolver) Resolve(context.Context, string, string, string) (string, bool) {
	f.calls++
	return f.id, f.found
}

// fakeBackend records invocations.
type fakeBackend struct {
	mu    sync.Mutex
	reply model.BackendReply
	err   error
	calls []backendCall
}

type backendCall struct {
	kind           model.BackendKind
	backendID      string
	message        string
	conversationID string
	user           string
}

func (f *fakeBackend) Invoke(_ context.Context, kind model.BackendKind, backendID, message, conversationID, user string) (model.BackendReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{kind, backendID, message, conversationID, user})
	return f.reply, f.err
}

// fakePoster records posted replies.
type fakePoster struct {
	mu      sync.Mutex
	replies []model.OutgoingReply
	err     error
}

func (f *fakePoster) PostReply(_ context.Context, reply model.OutgoingReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
	return f.err
}

func (f *fakePoster) all() []model.OutgoingReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.OutgoingReply(nil), f.replies...)
}

var errBoom = errors.New("boom")
