package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/study-artifacts/model"
)

func TestMemoryBroker_SubscribeReceivesEvents(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	events, stop, err := b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer stop()

	require.NoError(t, b.Publish(ctx, model.ProgressEvent{Type: model.EventProgress, SessionID: "s1", Progress: 10}))
	require.NoError(t, b.Publish(ctx, model.ProgressEvent{Type: model.EventProgress, SessionID: "other"}))

	select {
	case ev := <-events:
		assert.Equal(t, 10, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for another session: %+v", ev)
	default:
	}

	last, err := b.LastEvent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10, last.Progress)

	none, err := b.LastEvent(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryBroker_StopClosesChannel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	events, stop, err := b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	stop() // idempotent

	require.NoError(t, b.Publish(context.Background(), model.ProgressEvent{SessionID: "s1"}))
}

func TestMemoryBroker_ExpiresFinishedSessions(t *testing.T) {
	b := NewMemoryBroker()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	done := model.ProgressEvent{Type: model.EventComplete, SessionID: "done", Status: model.SessionStatusCompleted}
	require.NoError(t, b.Publish(ctx, done))
	require.NoError(t, b.Publish(ctx, model.ProgressEvent{Type: model.EventProgress, SessionID: "running"}))

	_, stop, err := b.Subscribe(ctx, "watched")
	require.NoError(t, err)
	defer stop()
	require.NoError(t, b.Publish(ctx, model.ProgressEvent{Type: model.EventComplete, SessionID: "watched", Status: model.SessionStatusCompleted}))

	now = now.Add(2 * time.Hour)

	last, err := b.LastEvent(ctx, "done")
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Empty(t, b.Events("done"))
	assert.Len(t, b.Events("running"), 1)

	// the next publish sweeps expired sessions that have no stream attached
	require.NoError(t, b.Publish(ctx, model.ProgressEvent{Type: model.EventProgress, SessionID: "new"}))
	assert.NotContains(t, b.history, "done")
	assert.NotContains(t, b.expires, "done")
	assert.Contains(t, b.history, "running")
	assert.Contains(t, b.history, "watched")

	// publishing again revives a session
	require.NoError(t, b.Publish(ctx, done))
	assert.Len(t, b.Events("done"), 1)
}

func TestMemoryBroker_Subscribers(t *testing.T) {
	b := NewMemoryBroker()
	_, stop, err := b.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("s1"))

	stop()
	assert.Zero(t, b.Subscribers("s1"))
}

func TestEventTTL(t *testing.T) {
	assert.Equal(t, EventTTLSuccess, eventTTL(model.ProgressEvent{Type: model.EventComplete, Status: model.SessionStatusCompleted}))
	assert.Equal(t, EventTTLFailure, eventTTL(model.ProgressEvent{Type: model.EventComplete, Status: model.SessionStatusPartial}))
	assert.Equal(t, EventTTLFailure, eventTTL(model.ProgressEvent{Type: model.EventError}))
	assert.Equal(t, EventTTLPending, eventTTL(model.ProgressEvent{Type: model.EventProgress}))
}
