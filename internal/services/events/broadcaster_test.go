package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Broadcaster, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBroadcaster(rdb, nil), rdb
}

func subscribe(t *testing.T, rdb *redis.Client, id uuid.UUID) <-chan *redis.Message {
	t.Helper()
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel(id))
	t.Cleanup(func() { _ = sub.Close() })
	// Wait for the subscription to be confirmed before publishing
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	return sub.Channel()
}

func receive(t *testing.T, ch <-chan *redis.Message) Event {
	t.Helper()
	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("9b2a6c3e-0d0f-4b7a-9d0e-6f1c2a3b4c5d")
	assert.Equal(t, "enlistment-events:9b2a6c3e-0d0f-4b7a-9d0e-6f1c2a3b4c5d", Channel(id))
}

func TestBroadcaster_HostEventProcessed(t *testing.T) {
	b, rdb := setup(t)
	id := uuid.New()
	ch := subscribe(t, rdb, id)

	result := session.EventResult{Type: session.EventDailyTick, Changed: true, Wage: 12}
	require.NoError(t, b.PublishHostEventProcessed(context.Background(), id, "req-1", result))

	ev := receive(t, ch)
	assert.Equal(t, EventTypeHostEventProcessed, ev.Type)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, id.String(), ev.SessionID)
	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 12, data["wage"])
}

func TestBroadcaster_HostEventFailed(t *testing.T) {
	b, rdb := setup(t)
	id := uuid.New()
	ch := subscribe(t, rdb, id)

	require.NoError(t, b.PublishHostEventFailed(context.Background(), id, "req-2", "boom"))

	ev := receive(t, ch)
	assert.Equal(t, EventTypeHostEventFailed, ev.Type)
	data := ev.Data.(map[string]any)
	assert.Equal(t, "boom", data["error"])
}

func TestBroadcaster_ForSession(t *testing.T) {
	b, rdb := setup(t)
	id := uuid.New()
	ch := subscribe(t, rdb, id)

	l := b.ForSession(context.Background(), id)
	l.OnStatusChanged(enlistment.StatusChange{Old: enlistment.StatusDischarged, New: enlistment.StatusActive})
	l.OnAnomaly(enlistment.Anomaly{Kind: enlistment.AnomalyStaleReserve})
	l.OnBattleParticipationDecided(battle.Decision{Outcome: battle.OutcomeAutoJoin, Rule: 5})

	assert.Equal(t, EventTypeStatusChanged, receive(t, ch).Type)
	anomaly := receive(t, ch)
	assert.Equal(t, EventTypeAnomaly, anomaly.Type)
	assert.Equal(t, enlistment.AnomalyStaleReserve, anomaly.Data.(map[string]any)["kind"])
	decided := receive(t, ch)
	assert.Equal(t, EventTypeParticipationDecided, decided.Type)
	assert.Equal(t, "auto_join", decided.Data.(map[string]any)["outcome"])
}
