package enlistment

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/enlisted/pkg/host"
)

var campaignStart = time.Date(1084, time.March, 1, 8, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// testWorld has lord_a travelling with the player and lord_b elsewhere.
func testWorld() *host.Snapshot {
	w := host.NewSnapshot(campaignStart)
	w.Lords["lord_a"] = host.Lord{ID: "lord_a", Name: "Derthert", Alive: true, PartyID: "party_a", Gold: 20000, Food: 40}
	w.Lords["lord_b"] = host.Lord{ID: "lord_b", Name: "Caladog", Alive: true, PartyID: "party_b", Gold: 900, Food: 12}
	w.Party = host.PlayerParty{ID: "player", Active: false, AttachedTo: "party_a", TroopCount: 12, Food: 3}
	return w
}

type fixture struct {
	engine   *Engine
	world    *host.Snapshot
	clock    *testClock
	recorder *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: campaignStart}
	world := testWorld()
	rec := &Recorder{}
	e := NewEngine(nil, nil, testLogger()).
		WithWorld(world).
		WithClock(clock).
		WithListener(rec)
	return &fixture{engine: e, world: world, clock: clock, recorder: rec}
}

func (f *fixture) startBattle(lordParty string) {
	f.world.Battles = append(f.world.Battles, host.Battle{
		ID:        "battle_1",
		Attackers: []string{lordParty},
		Defenders: []string{"bandits"},
	})
}
