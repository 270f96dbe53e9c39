package battle

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/menu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campaignStart = time.Date(1084, time.March, 1, 8, 0, 0, 0, time.UTC)

type decisionRecorder struct{ decisions []Decision }

func (r *decisionRecorder) OnBattleParticipationDecided(d Decision) {
	r.decisions = append(r.decisions, d)
}

type fixture struct {
	world       *host.Snapshot
	engine      *enlistment.Engine
	coordinator *Coordinator
	decisions   *decisionRecorder
	events      *enlistment.Recorder
}

func newFixture(t *testing.T, enlist bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	world := host.NewSnapshot(campaignStart)
	world.Lords["lord_a"] = host.Lord{ID: "lord_a", Name: "Derthert", Alive: true, PartyID: "party_a", Gold: 20000, Food: 40}
	world.Party = host.PlayerParty{ID: "player", AttachedTo: "party_a", TroopCount: 12}

	events := &enlistment.Recorder{}
	engine := enlistment.NewEngine(nil, nil, logger).WithWorld(world).WithClock(world).WithListener(events)
	decisions := &decisionRecorder{}
	coordinator := NewCoordinator(engine, nil, logger).WithActions(world).WithListener(decisions)

	if enlist {
		require.NoError(t, engine.Enlist(enlistment.LordRef{ID: "lord_a"}))
	}
	return &fixture{world: world, engine: engine, coordinator: coordinator, decisions: decisions, events: events}
}

func (f *fixture) lordBattle(lordSide host.Side) {
	b := host.Battle{ID: "battle_1"}
	if lordSide == host.SideAttacker {
		b.Attackers = []string{"party_a"}
		b.Defenders = []string{"looters"}
	} else {
		b.Attackers = []string{"looters"}
		b.Defenders = []string{"party_a"}
	}
	f.world.Battles = []host.Battle{b}
}

func attackOn(party string) Encounter {
	return Encounter{Kind: EncounterBattle, AttackerPartyID: party, DefenderPartyID: "player"}
}

func TestCoordinator_AutoJoinsLordSide(t *testing.T) {
	for _, side := range []host.Side{host.SideAttacker, host.SideDefender} {
		t.Run(string(side), func(t *testing.T) {
			f := newFixture(t, true)
			f.lordBattle(side)

			d := f.coordinator.DecideEncounter(attackOn("looters"))

			assert.Equal(t, OutcomeAutoJoin, d.Outcome)
			assert.Equal(t, side, d.Side)
			assert.Equal(t, "battle_1", d.BattleID)
			assert.Equal(t, menu.Encounter, d.Menu, "standard battle menu replaces the help/ignore chooser")
			assert.Equal(t, []host.Join{{BattleID: "battle_1", Side: side}}, f.world.Joins)
			assert.Equal(t, PhaseDeployed, f.coordinator.Tracker().Current())
			require.Len(t, f.decisions.decisions, 1)
		})
	}
}

func TestCoordinator_PriorityRules(t *testing.T) {
	tests := []struct {
		name    string
		enlist  bool
		setup   func(t *testing.T, f *fixture)
		enc     Encounter
		outcome Outcome
		rule    int
	}{
		{
			name:    "prisoner is never intercepted",
			enlist:  true,
			setup:   func(t *testing.T, f *fixture) { f.world.Party.Prisoner = true },
			enc:     attackOn("looters"),
			outcome: OutcomeNative,
			rule:    1,
		},
		{
			name:   "reserve blocks new encounters",
			enlist: true,
			setup: func(t *testing.T, f *fixture) {
				f.lordBattle(host.SideAttacker)
				require.NoError(t, f.engine.EnterReserve())
			},
			enc:     attackOn("looters"),
			outcome: OutcomeBlock,
			rule:    2,
		},
		{
			name:   "grace protection after desertion",
			enlist: true,
			setup: func(t *testing.T, f *fixture) {
				_, err := f.engine.Discharge(enlistment.ReasonDesertion)
				require.NoError(t, err)
			},
			enc:     attackOn("looters"),
			outcome: OutcomeBlock,
			rule:    3,
		},
		{
			name:    "never enlisted",
			enlist:  false,
			enc:     attackOn("looters"),
			outcome: OutcomeNative,
			rule:    4,
		},
		{
			name:    "on leave acts independently",
			enlist:  true,
			setup:   func(t *testing.T, f *fixture) { require.NoError(t, f.engine.BeginLeave()) },
			enc:     attackOn("looters"),
			outcome: OutcomeNative,
			rule:    4,
		},
		{
			name:   "lord vanished mid-battle fails open",
			enlist: true,
			setup: func(t *testing.T, f *fixture) {
				f.lordBattle(host.SideAttacker)
				delete(f.world.Lords, "lord_a")
			},
			enc:     attackOn("looters"),
			outcome: OutcomeNative,
			rule:    4,
		},
		{
			name:    "stray meeting with lord's party",
			enlist:  true,
			enc:     Encounter{Kind: EncounterMeeting, AttackerPartyID: "player", DefenderPartyID: "party_a"},
			outcome: OutcomeBlock,
			rule:    5,
		},
		{
			name:   "duplicate encounter while inside a battle",
			enlist: true,
			setup: func(t *testing.T, f *fixture) {
				f.lordBattle(host.SideAttacker)
				f.world.Party.BattleID = "battle_1"
			},
			enc:     attackOn("looters"),
			outcome: OutcomeBlock,
			rule:    7,
		},
		{
			name:    "embedded without a battle",
			enlist:  true,
			enc:     attackOn("looters"),
			outcome: OutcomeBlock,
			rule:    8,
		},
		{
			name:    "lord's battle is against someone else",
			enlist:  true,
			setup:   func(t *testing.T, f *fixture) { f.lordBattle(host.SideAttacker) },
			enc:     attackOn("caravan"),
			outcome: OutcomeBlock,
			rule:    8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.enlist)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			d := f.coordinator.DecideEncounter(tt.enc)

			assert.Equal(t, tt.outcome, d.Outcome, d.Reason)
			assert.Equal(t, tt.rule, d.Rule, d.Reason)
			assert.Equal(t, campaignStart, d.At)
			assert.Empty(t, f.world.Joins)
		})
	}
}

func TestCoordinator_JoinFailureFallsBackToChooser(t *testing.T) {
	f := newFixture(t, true)
	f.lordBattle(host.SideAttacker)
	f.world.Party.TroopCount = 0

	d := f.coordinator.DecideEncounter(attackOn("looters"))

	assert.Equal(t, OutcomeNative, d.Outcome)
	assert.Equal(t, 6, d.Rule)
	assert.Equal(t, menu.JoinEncounter, d.Menu)
	assert.Contains(t, d.Reason, "join failed")
	assert.Equal(t, PhaseNotInBattle, f.coordinator.Tracker().Current())
}

func TestCoordinator_NoActionsFallsBackToChooser(t *testing.T) {
	f := newFixture(t, true)
	f.lordBattle(host.SideAttacker)
	f.coordinator.WithActions(nil)

	d := f.coordinator.DecideEncounter(attackOn("looters"))
	assert.Equal(t, OutcomeNative, d.Outcome)
	assert.Equal(t, 6, d.Rule)
}

func TestCoordinator_NoWorldFailsOpen(t *testing.T) {
	engine := enlistment.NewEngine(nil, nil, nil)
	c := NewCoordinator(engine, nil, nil)
	d := c.DecideEncounter(attackOn("looters"))
	assert.Equal(t, OutcomeNative, d.Outcome)
	assert.Zero(t, d.Rule)
}

func TestCoordinator_StaleReserveIsCleared(t *testing.T) {
	world := host.NewSnapshot(campaignStart)
	world.Lords["lord_a"] = host.Lord{ID: "lord_a", Alive: true, PartyID: "party_a"}
	world.Party = host.PlayerParty{ID: "player", AttachedTo: "party_a"}
	st := &enlistment.State{
		Status:           enlistment.StatusOnLeave,
		Lord:             &enlistment.LordRef{ID: "lord_a"},
		Tier:             2,
		WaitingInReserve: true,
	}
	events := &enlistment.Recorder{}
	engine := enlistment.NewEngine(st, nil, nil).WithWorld(world).WithClock(world).WithListener(events)
	c := NewCoordinator(engine, nil, nil)

	d := c.DecideEncounter(attackOn("looters"))

	assert.Equal(t, OutcomeNative, d.Outcome)
	assert.False(t, st.WaitingInReserve)
	require.Len(t, events.Anomalies, 1)
	assert.Equal(t, enlistment.AnomalyStaleReserve, events.Anomalies[0].Kind)
}

func TestCoordinator_ReserveBattleLifecycle(t *testing.T) {
	f := newFixture(t, true)
	f.lordBattle(host.SideAttacker)

	require.True(t, f.coordinator.LordEngaged())
	assert.True(t, f.coordinator.LordEngaged(), "same battle twice is a no-op")
	assert.Equal(t, PhaseReserve, f.coordinator.Tracker().Current())

	d, err := f.coordinator.WaitInReserve()
	require.NoError(t, err)
	assert.Equal(t, OutcomeReserve, d.Outcome)
	assert.Equal(t, menu.BattleWait, d.Menu)
	assert.True(t, f.engine.IsWaitingInReserve())

	blocked := f.coordinator.DecideEncounter(attackOn("looters"))
	assert.Equal(t, OutcomeBlock, blocked.Outcome)

	f.world.Battles[0].Winner = host.SideAttacker
	assert.True(t, f.coordinator.BattleEnded("battle_1", host.SideAttacker))

	assert.False(t, f.engine.IsWaitingInReserve())
	assert.Equal(t, enlistment.StatusActive, f.engine.Status())
	tr := f.coordinator.Tracker()
	assert.Equal(t, PhaseNotInBattle, tr.Current())
	assert.Equal(t, "battle_1", tr.LastBattleID)
	assert.True(t, tr.LastLordWon)

	assert.False(t, f.coordinator.BattleEnded("battle_1", host.SideAttacker), "second end signal is a no-op")
	assert.False(t, f.coordinator.Cleanup("menu refresh"), "cleanup after cleanup is a no-op")
}

func TestCoordinator_Deploy(t *testing.T) {
	f := newFixture(t, true)
	f.lordBattle(host.SideDefender)
	assert.False(t, f.coordinator.Deploy(), "nothing to deploy into")

	_, err := f.coordinator.WaitInReserve()
	require.NoError(t, err)

	assert.True(t, f.coordinator.Deploy())
	assert.False(t, f.engine.IsWaitingInReserve())
	assert.Equal(t, PhaseDeployed, f.coordinator.Tracker().Current())
	assert.Equal(t, host.SideDefender, f.coordinator.Tracker().Side)
	assert.False(t, f.coordinator.Deploy())
}

func TestCoordinator_WaitInReserveWithoutBattle(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.coordinator.WaitInReserve()
	assert.ErrorIs(t, err, enlistment.ErrNoActiveBattle)
}

func TestCoordinator_StaleCheck(t *testing.T) {
	t.Run("battle gone", func(t *testing.T) {
		f := newFixture(t, true)
		f.lordBattle(host.SideAttacker)
		_, err := f.coordinator.WaitInReserve()
		require.NoError(t, err)

		f.world.Battles = nil
		assert.True(t, f.coordinator.StaleCheck())
		assert.False(t, f.engine.IsWaitingInReserve())
		assert.False(t, f.coordinator.StaleCheck())
	})

	t.Run("battle already won", func(t *testing.T) {
		f := newFixture(t, true)
		f.lordBattle(host.SideAttacker)
		require.True(t, f.coordinator.LordEngaged())

		f.world.Battles[0].Winner = host.SideDefender
		assert.True(t, f.coordinator.StaleCheck())
		tr := f.coordinator.Tracker()
		assert.False(t, tr.InBattle())
		assert.False(t, tr.LastLordWon)
	})

	t.Run("battle still running", func(t *testing.T) {
		f := newFixture(t, true)
		f.lordBattle(host.SideAttacker)
		require.True(t, f.coordinator.LordEngaged())
		assert.False(t, f.coordinator.StaleCheck())
	})
}
