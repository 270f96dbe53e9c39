package session

import (
	"testing"
	"time"

	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvent_ReserveBattleScenario(t *testing.T) {
	s, rec := newTestSession(t, true)
	s.startBattle()

	res, err := s.HandleEvent(Event{Type: EventBattleStarted})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	_, err = s.Execute(Command{Type: CmdEnterReserve})
	require.NoError(t, err)

	s.World.Battles[0].Winner = host.SideAttacker
	res, err = s.HandleEvent(Event{Type: EventBattleEnded, BattleID: "battle_1", Winner: host.SideAttacker})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, s.Engine.IsWaitingInReserve())
	assert.Equal(t, enlistment.StatusActive, s.Engine.Status())
	assert.True(t, s.Record.Battle.LastLordWon)

	// "map event ended" and "menu refresh" both fire after a battle.
	res, err = s.HandleEvent(Event{Type: EventBattleEnded, BattleID: "battle_1", Winner: host.SideAttacker})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, rec.Anomalies)
}

func TestHandleEvent_DesertionGraceBlocksEncounter(t *testing.T) {
	s, _ := newTestSession(t, true)
	_, err := s.Execute(Command{Type: CmdDischarge, Reason: enlistment.ReasonDesertion})
	require.NoError(t, err)

	d := s.Coordinator.DecideEncounter(battle.Encounter{Kind: battle.EncounterBattle, AttackerPartyID: "looters", DefenderPartyID: "player"})
	assert.Equal(t, battle.OutcomeBlock, d.Outcome)
	assert.False(t, d.Allows())

	s.World.Time = s.World.Time.Add(7 * time.Hour)
	_, err = s.HandleEvent(Event{Type: EventDailyTick})
	require.NoError(t, err)
	assert.False(t, s.Engine.HasActiveGraceProtection())
	assert.True(t, s.Record.State.GraceProtectionUntil.IsZero())
}

func TestHandleEvent_Captivity(t *testing.T) {
	s, _ := newTestSession(t, true)
	s.startBattle()
	_, err := s.Execute(Command{Type: CmdEnterReserve})
	require.NoError(t, err)
	s.Router.BeginVisit("town_epicrotea")

	_, err = s.HandleEvent(Event{Type: EventPlayerCaptured})
	require.NoError(t, err)
	assert.True(t, s.Engine.IsCaptive())
	assert.False(t, s.Engine.IsWaitingInReserve())
	assert.False(t, s.Router.Visit().Active())
	assert.Equal(t, battle.PhaseNotInBattle, s.Record.Battle.Current())

	res, err := s.HandleEvent(Event{Type: EventPlayerCaptured})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = s.HandleEvent(Event{Type: EventPlayerReleased})
	require.NoError(t, err)
	assert.False(t, s.Engine.IsCaptive())
	assert.Equal(t, enlistment.StatusActive, s.Engine.Status())
}

func TestHandleEvent_LordCapturedAndReleased(t *testing.T) {
	s, _ := newTestSession(t, true)

	res, err := s.HandleEvent(Event{Type: EventLordCaptured, LordID: "lord_other"})
	require.NoError(t, err)
	assert.False(t, res.Changed, "someone else's lord")

	lord := s.World.Lords["lord_a"]
	lord.Prisoner = true
	s.World.Lords["lord_a"] = lord

	_, err = s.HandleEvent(Event{Type: EventLordCaptured, LordID: "lord_a"})
	require.NoError(t, err)
	assert.True(t, s.Engine.IsInGracePeriod())
	assert.Equal(t, "lord_a", s.Engine.CurrentLord().ID)

	_, err = s.HandleEvent(Event{Type: EventLordReleased, LordID: "lord_a"})
	require.NoError(t, err)
	assert.True(t, s.Engine.IsInGracePeriod(), "world still shows the lord imprisoned")

	lord.Prisoner = false
	s.World.Lords["lord_a"] = lord
	_, err = s.HandleEvent(Event{Type: EventLordReleased, LordID: "lord_a"})
	require.NoError(t, err)
	assert.True(t, s.Engine.IsActive())
}

func TestHandleEvent_GracePeriodExpires(t *testing.T) {
	s, _ := newTestSession(t, true)
	_, err := s.HandleEvent(Event{Type: EventLordCaptured})
	require.NoError(t, err)
	require.True(t, s.Engine.IsInGracePeriod())

	s.World.Time = s.World.Time.Add(15 * 24 * time.Hour)
	res, err := s.HandleEvent(Event{Type: EventDailyTick})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enlistment.StatusDischarged, s.Engine.Status())
	assert.Equal(t, enlistment.ReasonLordDefeatedOrCaptured, s.Record.State.LastDischargeReason)
	assert.Zero(t, res.Wage)
}

func TestHandleEvent_LordKilled(t *testing.T) {
	s, rec := newTestSession(t, true)
	s.startBattle()
	_, err := s.Execute(Command{Type: CmdEnterReserve})
	require.NoError(t, err)

	res, err := s.HandleEvent(Event{Type: EventLordKilled, LordID: "lord_a"})
	require.NoError(t, err)
	require.NotNil(t, res.Discharge)
	assert.False(t, res.Discharge.RelationPenaltySuppressed)
	assert.Equal(t, enlistment.StatusDischarged, s.Engine.Status())
	assert.Nil(t, s.Record.State.Lord)
	assert.False(t, s.Record.State.WaitingInReserve)

	last := rec.Changes[len(rec.Changes)-1]
	assert.Equal(t, enlistment.ReasonLordDefeatedOrCaptured, last.Reason)

	res, err = s.HandleEvent(Event{Type: EventLordKilled, LordID: "lord_a"})
	require.NoError(t, err)
	assert.Nil(t, res.Discharge)
}

func TestHandleEvent_DailyTickPaysWage(t *testing.T) {
	s, _ := newTestSession(t, true)
	res, err := s.HandleEvent(Event{Type: EventDailyTick})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Wage)
	assert.False(t, res.Changed)
}

func TestHandleEvent_ArmyDispersedAndNavalDisband(t *testing.T) {
	s, _ := newTestSession(t, true)
	s.startBattle()
	_, err := s.HandleEvent(Event{Type: EventBattleStarted})
	require.NoError(t, err)

	s.World.Battles = nil
	res, err := s.HandleEvent(Event{Type: EventArmyDispersed})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, s.Record.Battle.InBattle())

	s.startBattle()
	_, err = s.Execute(Command{Type: CmdEnterReserve})
	require.NoError(t, err)
	_, err = s.HandleEvent(Event{Type: EventNavalDisband})
	require.NoError(t, err)
	assert.False(t, s.Engine.IsWaitingInReserve())
}

func TestHandleEvent_Visits(t *testing.T) {
	s, _ := newTestSession(t, true)

	_, err := s.HandleEvent(Event{Type: EventSettlementEntered})
	assert.Error(t, err)

	res, err := s.HandleEvent(Event{Type: EventSettlementEntered, SettlementID: "town_epicrotea"})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = s.HandleEvent(Event{Type: EventSettlementLeft})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = s.HandleEvent(Event{Type: EventSettlementLeft})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestHandleEvent_Unknown(t *testing.T) {
	s, _ := newTestSession(t, false)
	_, err := s.HandleEvent(Event{Type: "festival"})
	assert.Error(t, err)
}
