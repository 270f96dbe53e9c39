package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/stretchr/testify/assert"
)

func TestHumanize(t *testing.T) {
	assert.Equal(t, "On Leave", humanize("on_leave"))
	assert.Equal(t, "Not In Battle", humanize("not_in_battle"))
	assert.Equal(t, "-", humanize(""))
}

func TestGold(t *testing.T) {
	assert.Equal(t, "1,250 denars", gold(1250))
	assert.Equal(t, "0 denars", gold(0))
}

func TestDescribeStreamEvent(t *testing.T) {
	ev := SSEEvent{
		Type: "enlistment.status_changed",
		Data: map[string]any{"data": map[string]any{"old": "active", "new": "on_leave"}},
	}
	assert.Contains(t, describeStreamEvent(ev), "Active -> On Leave")

	ev = SSEEvent{
		Type: "host_event.failed",
		Data: map[string]any{"data": map[string]any{"status": "failed", "error": "boom"}},
	}
	assert.Contains(t, describeStreamEvent(ev), "boom")

	assert.Equal(t, "Something New", describeStreamEvent(SSEEvent{Type: "something_new"}))
}

func TestWriteStatus(t *testing.T) {
	rec := &session.Record{ID: uuid.New()}

	out := writeStatus(rec, nil)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "Loading status")

	out = writeStatus(rec, &session.Query{
		Status:             enlistment.StatusActive,
		Lord:               &enlistment.LordRef{ID: "lord_a", Name: "Lord A"},
		Tier:               3,
		ProjectedDailyWage: 1500,
		IsActive:           true,
		BattlePhase:        "reserve",
		BattleID:           "b7",
	})
	assert.Contains(t, out, "Lord A")
	assert.Contains(t, out, "1,500 denars")
	assert.Contains(t, out, "Reserve (b7)")
}
