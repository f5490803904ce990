package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertDiep/dify-slackbot/internal/model"
)

func configuredContext() *RequestContext {
	return &RequestContext{
		TeamID:     "T1",
		Configured: true,
		Config: model.ChannelConfig{
			{ChannelID: "C1", Kind: model.BackendChatflow, BackendID: "app-1"},
			{ChannelID: "C2", Kind: model.BackendWorkflow, BackendID: "wf-2"},
		},
	}
}

func TestThreadStateString(t *testing.T) {
	assert.Equal(t, "new_thread", NewThread.String())
	assert.Equal(t, "existing_thread_known_convo", ExistingThreadKnownConversation.String())
	assert.Equal(t, "existing_thread_unknown_convo", ExistingThreadUnknownConversation.String())
}

func TestRouterNewThreadAttachesConversation(t *testing.T) {
	resolver := &fakeResolver{id: "should-not-be-used", found: true}
	backend := &fakeBackend{reply: model.BackendReply{Answer: "hello", ConversationID: "conv-1"}}
	poster := &fakePoster{}
	r := NewRouter(resolver, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "<@UBOT> hi", MessageTS: "100.1"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	assert.Zero(t, resolver.calls)
	require.Len(t, backend.calls, 1)
	assert.Equal(t, backendCall{kind: model.BackendChatflow, backendID: "app-1", message: "<@UBOT> hi", conversationID: "", user: "U1"}, backend.calls[0])

	replies := poster.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "C1", replies[0].ChannelID)
	assert.Equal(t, "100.1", replies[0].ThreadTS)
	assert.Equal(t, "<@U1>, hello", replies[0].Text)
	require.NotNil(t, replies[0].Metadata)
	att, ok := model.AttachmentFromMetadata(replies[0].Metadata)
	require.True(t, ok)
	assert.Equal(t, "conv-1", att.ConversationID)
}

func TestRouterNewThreadWithoutConversationID(t *testing.T) {
	backend := &fakeBackend{reply: model.BackendReply{Answer: "done"}}
	poster := &fakePoster{}
	r := NewRouter(&fakeResolver{}, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C2", UserID: "U1", Text: "run", MessageTS: "100.1"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	require.Len(t, backend.calls, 1)
	assert.Equal(t, model.BackendWorkflow, backend.calls[0].kind)
	replies := poster.all()
	require.Len(t, replies, 1)
	assert.Nil(t, replies[0].Metadata)
}

func TestRouterExistingThreadKnownConversation(t *testing.T) {
	resolver := &fakeResolver{id: "conv-7", found: true}
	backend := &fakeBackend{reply: model.BackendReply{Answer: "again", ConversationID: "conv-7"}}
	poster := &fakePoster{}
	r := NewRouter(resolver, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "more", MessageTS: "100.5", ThreadRootTS: "100.1"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	assert.Equal(t, 1, resolver.calls)
	require.Len(t, backend.calls, 1)
	assert.Equal(t, "conv-7", backend.calls[0].conversationID)

	replies := poster.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "100.1", replies[0].ThreadTS)
	assert.Nil(t, replies[0].Metadata)
}

func TestRouterExistingThreadUnknownConversation(t *testing.T) {
	resolver := &fakeResolver{}
	backend := &fakeBackend{reply: model.BackendReply{Answer: "fresh", ConversationID: "conv-new"}}
	poster := &fakePoster{}
	r := NewRouter(resolver, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "hi", MessageTS: "100.5", ThreadRootTS: "100.1"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	assert.Equal(t, 1, resolver.calls)
	require.Len(t, backend.calls, 1)
	assert.Empty(t, backend.calls[0].conversationID)

	replies := poster.all()
	require.Len(t, replies, 1)
	assert.Nil(t, replies[0].Metadata)
}

func TestRouterThreadedEndToEndWithHistory(t *testing.T) {
	reader := &fakeThreadReader{msgs: []model.ThreadMessage{
		{TS: "100.1", User: "U1"},
		{TS: "100.2", BotID: "B1", Metadata: marker("conv-a")},
		{TS: "100.3", BotID: "B1", Metadata: marker("conv-b")},
	}}
	backend := &fakeBackend{reply: model.BackendReply{Answer: "ok"}}
	r := NewRouter(NewHistoryResolver(reader, testLogger), backend, &fakePoster{}, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "hi", MessageTS: "100.4", ThreadRootTS: "100.1"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	require.Len(t, backend.calls, 1)
	assert.Equal(t, "conv-a", backend.calls[0].conversationID)
}

func TestRouterConfigNotFound(t *testing.T) {
	tests := []struct {
		name string
		rc   *RequestContext
		ev   model.IncomingEvent
		want string
	}{
		{
			name: "unconfigured",
			rc:   &RequestContext{},
			ev:   model.IncomingEvent{ChannelID: "C9", UserID: "U1", Text: "hi", MessageTS: "1.0"},
			want: msgUnconfigured,
		},
		{
			name: "channel missing",
			rc:   configuredContext(),
			ev:   model.IncomingEvent{ChannelID: "C9", UserID: "U1", Text: "hi", MessageTS: "1.0", ThreadRootTS: "0.5"},
			want: msgChannelNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			poster := &fakePoster{}
			r := NewRouter(&fakeResolver{}, backend, poster, testLogger)

			require.NoError(t, r.HandleMention(context.Background(), tt.rc, tt.ev))

			assert.Empty(t, backend.calls)
			replies := poster.all()
			require.Len(t, replies, 1)
			assert.Equal(t, tt.want, replies[0].Text)
			assert.Equal(t, tt.ev.ThreadTarget(), replies[0].ThreadTS)
			assert.Nil(t, replies[0].Metadata)
		})
	}
}

func TestRouterBackendErrorDegradesToText(t *testing.T) {
	backend := &fakeBackend{err: errBoom}
	poster := &fakePoster{}
	r := NewRouter(&fakeResolver{}, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "hi", MessageTS: "1.0"}
	require.NoError(t, r.HandleMention(context.Background(), configuredContext(), ev))

	replies := poster.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "<@U1>, Exception: boom", replies[0].Text)
	assert.Nil(t, replies[0].Metadata)
}

func TestRouterPostFailureIsReturned(t *testing.T) {
	backend := &fakeBackend{reply: model.BackendReply{Answer: "x"}}
	poster := &fakePoster{err: errBoom}
	r := NewRouter(&fakeResolver{}, backend, poster, testLogger)

	ev := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "hi", MessageTS: "1.0"}
	err := r.HandleMention(context.Background(), configuredContext(), ev)
	assert.ErrorIs(t, err, errBoom)
}

// blockingBackend parks the first call until released.
type blockingBackend struct {
	fakeBackend
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) Invoke(ctx context.Context, kind model.BackendKind, backendID, message, conversationID, user string) (model.BackendReply, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-b.release
	}
	return b.fakeBackend.Invoke(ctx, kind, backendID, message, conversationID, user)
}

func TestRouterSerializesSameThread(t *testing.T) {
	backend := &blockingBackend{
		fakeBackend: fakeBackend{reply: model.BackendReply{Answer: "a", ConversationID: "conv-1"}},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	resolver := &fakeResolver{}
	r := NewRouter(resolver, backend, &fakePoster{}, testLogger)
	rc := configuredContext()

	root := model.IncomingEvent{ChannelID: "C1", UserID: "U1", Text: "first", MessageTS: "100.1"}
	reply := model.IncomingEvent{ChannelID: "C1", UserID: "U2", Text: "second", MessageTS: "100.2", ThreadRootTS: "100.1"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, r.HandleMention(context.Background(), rc, root))
	}()
	<-backend.started

	go func() {
		defer wg.Done()
		assert.NoError(t, r.HandleMention(context.Background(), rc, reply))
	}()

	// The thread reply must not reach the resolver while the root is in flight.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, resolver.calls)

	close(backend.release)
	wg.Wait()

	require.Len(t, backend.calls, 2)
	assert.Equal(t, "first", backend.calls[0].message)
	assert.Equal(t, "second", backend.calls[1].message)
	assert.Equal(t, 1, resolver.calls)
	assert.Zero(t, r.threads.size())
}
