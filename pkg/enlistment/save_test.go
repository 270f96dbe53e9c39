package enlistment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_RoundTripActive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Enlist(LordRef{ID: "lord_a"}))
	_, err := f.engine.AdvanceTier()
	require.NoError(t, err)
	f.startBattle("party_a")
	require.NoError(t, f.engine.EnterReserve())

	data, err := f.engine.Save()
	require.NoError(t, err)

	loaded := newFixture(t)
	require.NoError(t, loaded.engine.Restore(data))

	st := loaded.engine.Snapshot()
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, 2, st.Tier)
	require.NotNil(t, st.Lord)
	assert.Equal(t, "lord_a", st.Lord.ID)
	assert.False(t, st.WaitingInReserve, "reserve flag never survives a load")
	assert.Empty(t, loaded.recorder.Anomalies)
	require.Len(t, loaded.recorder.Changes, 1)
	assert.Equal(t, StatusActive, loaded.recorder.Changes[0].New)
}

func TestSave_GraceProtectionOnLoad(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Enlist(LordRef{ID: "lord_a"}))
	_, err := f.engine.Discharge(ReasonVoluntary)
	require.NoError(t, err)
	data, err := f.engine.Save()
	require.NoError(t, err)

	t.Run("window still open", func(t *testing.T) {
		loaded := newFixture(t)
		loaded.clock.advance(time.Hour)
		require.NoError(t, loaded.engine.Restore(data))
		assert.True(t, loaded.engine.HasActiveGraceProtection())
	})

	t.Run("window closed", func(t *testing.T) {
		loaded := newFixture(t)
		loaded.clock.advance(48 * time.Hour)
		require.NoError(t, loaded.engine.Restore(data))
		assert.False(t, loaded.engine.HasActiveGraceProtection())
		assert.True(t, loaded.engine.Snapshot().GraceProtectionUntil.IsZero())
	})
}

func TestSave_RestoreRepairsBadRecords(t *testing.T) {
	sd := SaveData{
		Version: SaveVersion,
		State: State{
			Status:               StatusOnLeave,
			Lord:                 &LordRef{ID: "lord_a"},
			Tier:                 2,
			WaitingInReserve:     true,
			GraceProtectionUntil: campaignStart.Add(time.Hour),
		},
	}
	data, err := json.Marshal(sd)
	require.NoError(t, err)

	f := newFixture(t)
	require.NoError(t, f.engine.Restore(data))

	st := f.engine.Snapshot()
	assert.False(t, st.WaitingInReserve)
	assert.True(t, st.GraceProtectionUntil.IsZero(), "protection only survives on discharged records")
	assert.NoError(t, st.Validate())
}

func TestSave_RestoreRejectsBadData(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Enlist(LordRef{ID: "lord_a"}))
	before := f.engine.Snapshot()

	assert.Error(t, f.engine.Restore([]byte("not json")))
	assert.Error(t, f.engine.Restore([]byte(`{"version": 99, "state": {"status": "active"}}`)))
	assert.Error(t, f.engine.Restore([]byte(`{"state": {"status": "active"}}`)))
	assert.Equal(t, before, f.engine.Snapshot())
}
