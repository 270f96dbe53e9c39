package menu

import (
	"testing"
	"time"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct{ calls []string }

func (c *countingCleaner) Cleanup(reason string) bool {
	c.calls = append(c.calls, reason)
	return true
}

type routerFixture struct {
	world   *host.Snapshot
	engine  *enlistment.Engine
	router  *Router
	cleaner *countingCleaner
}

func newRouterFixture(t *testing.T, enlist bool) *routerFixture {
	t.Helper()
	world := host.NewSnapshot(time.Date(1084, time.March, 1, 8, 0, 0, 0, time.UTC))
	world.Lords["lord_a"] = host.Lord{ID: "lord_a", Name: "Derthert", Alive: true, PartyID: "party_a"}
	world.Lords["lord_m"] = host.Lord{ID: "lord_m", Name: "Monchug", Alive: true, PartyID: "party_m"}
	world.Party = host.PlayerParty{ID: "player", AttachedTo: "party_a", TroopCount: 12}

	engine := enlistment.NewEngine(nil, nil, nil).WithWorld(world).WithClock(world)
	if enlist {
		require.NoError(t, engine.Enlist(enlistment.LordRef{ID: "lord_a"}))
	}
	cleaner := &countingCleaner{}
	router := NewRouter(engine, nil, nil).WithCleaner(cleaner)
	return &routerFixture{world: world, engine: engine, router: router, cleaner: cleaner}
}

func (f *routerFixture) battle(winner host.Side) {
	f.world.Battles = []host.Battle{{
		ID:        "battle_1",
		Attackers: []string{"party_a"},
		Defenders: []string{"looters"},
		Winner:    winner,
	}}
}

func (f *routerFixture) setLord(id string, mutate func(l *host.Lord)) {
	l := f.world.Lords[id]
	mutate(&l)
	f.world.Lords[id] = l
}

func TestRouter_Rules(t *testing.T) {
	tests := []struct {
		name     string
		enlist   bool
		setup    func(t *testing.T, f *routerFixture)
		req      Request
		want     ID
		override bool
		rule     int
		cleanups int
	}{
		{
			name:   "not enlisted",
			enlist: false,
			req:    Request{Menu: TownOutside},
			want:   TownOutside,
		},
		{
			name:   "reserve forces battle wait",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.battle(host.SideNone)
				require.NoError(t, f.engine.EnterReserve())
			},
			req:      Request{Menu: Encounter, BattleID: "battle_1"},
			want:     BattleWait,
			override: true,
			rule:     1,
		},
		{
			name:   "explicit visit is left alone",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.router.BeginVisit("town_epicrotea")
			},
			req:  Request{Menu: TownInside},
			want: TownInside,
			rule: 2,
		},
		{
			name:   "lord besieging",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.setLord("lord_a", func(l *host.Lord) { l.SiegeID = "siege_1" })
				f.world.Sieges = []host.Siege{{ID: "siege_1", SettlementID: "castle_1", BesiegerID: "party_a", Active: true}}
			},
			req:  Request{Menu: ArmyWaitAtSettle},
			want: ArmyWaitAtSettle,
			rule: 3,
		},
		{
			name:   "army leader besieging",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.setLord("lord_a", func(l *host.Lord) { l.ArmyLeaderID = "lord_m" })
				f.setLord("lord_m", func(l *host.Lord) { l.SiegeID = "siege_2" })
				f.world.Sieges = []host.Siege{{ID: "siege_2", SettlementID: "castle_2", BesiegerID: "party_m", Active: true}}
			},
			req:  Request{Menu: SiegeStrategies, SiegeID: "siege_2"},
			want: SiegeStrategies,
			rule: 3,
		},
		{
			name:   "captive sees captivity menus",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.engine.EnterCaptivity()
			},
			req:  Request{Menu: CaptivityWait},
			want: CaptivityWait,
			rule: 4,
		},
		{
			name:   "stale battle menu",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.battle(host.SideAttacker)
			},
			req:      Request{Menu: Encounter, BattleID: "battle_1"},
			want:     Status,
			override: true,
			rule:     5,
			cleanups: 1,
		},
		{
			name:     "battle gone entirely",
			enlist:   true,
			req:      Request{Menu: BattleAftermath, BattleID: "battle_9"},
			want:     Status,
			override: true,
			rule:     5,
			cleanups: 1,
		},
		{
			name:   "siege torn down",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.world.Sieges = []host.Siege{{ID: "siege_1", Active: false}}
			},
			req:      Request{Menu: SiegeAssault, SiegeID: "siege_1"},
			want:     Status,
			override: true,
			rule:     5,
			cleanups: 1,
		},
		{
			name:   "live battle menu is kept",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				f.battle(host.SideNone)
			},
			req:  Request{Menu: Encounter, BattleID: "battle_1"},
			want: Encounter,
		},
		{
			name:     "army wait while embedded",
			enlist:   true,
			req:      Request{Menu: ArmyWait},
			want:     Status,
			override: true,
			rule:     6,
		},
		{
			name:     "town outside while embedded",
			enlist:   true,
			req:      Request{Menu: TownOutside},
			want:     Status,
			override: true,
			rule:     6,
		},
		{
			name:   "on leave is independent",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				require.NoError(t, f.engine.BeginLeave())
			},
			req:  Request{Menu: TownOutside},
			want: TownOutside,
		},
		{
			name:   "missing lord falls back to host",
			enlist: true,
			setup: func(t *testing.T, f *routerFixture) {
				delete(f.world.Lords, "lord_a")
			},
			req:  Request{Menu: ArmyWait},
			want: ArmyWait,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, tt.enlist)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			rt := f.router.Route(tt.req)

			assert.Equal(t, tt.want, rt.Menu, rt.Reason)
			assert.Equal(t, tt.override, rt.Override, rt.Reason)
			assert.Equal(t, tt.rule, rt.Rule, rt.Reason)
			assert.Len(t, f.cleaner.calls, tt.cleanups)
		})
	}
}

func TestRouter_StaleReserveIsCleaned(t *testing.T) {
	f := newRouterFixture(t, true)
	f.battle(host.SideNone)
	require.NoError(t, f.engine.EnterReserve())

	f.world.Battles = nil
	rt := f.router.Route(Request{Menu: ArmyWait})

	assert.False(t, f.engine.IsWaitingInReserve())
	assert.Len(t, f.cleaner.calls, 1)
	assert.Equal(t, Status, rt.Menu, "falls through to the embedded rule")
	assert.Equal(t, 6, rt.Rule)
}

func TestRouter_ReserveWithoutCleaner(t *testing.T) {
	f := newRouterFixture(t, true)
	f.router.WithCleaner(nil)
	f.battle(host.SideNone)
	require.NoError(t, f.engine.EnterReserve())
	f.world.Battles = nil

	f.router.Route(Request{Menu: ArmyWait})
	assert.False(t, f.engine.IsWaitingInReserve())
}

func TestRouter_Visit(t *testing.T) {
	visit := &Visit{}
	f := newRouterFixture(t, true)
	router := NewRouter(f.engine, visit, nil)

	assert.False(t, router.EndVisit())

	router.BeginVisit("town_epicrotea")
	assert.Equal(t, "town_epicrotea", visit.SettlementID)
	assert.Equal(t, f.world.Time, visit.StartedAt)
	assert.Equal(t, TownInside, router.Route(Request{Menu: TownInside}).Menu)

	assert.True(t, router.EndVisit())
	assert.False(t, router.Visit().Active())
	assert.Equal(t, Status, router.Route(Request{Menu: TownInside}).Menu)
}
