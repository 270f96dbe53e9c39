package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/jwebster45206/enlisted/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

func writePolicy(t *testing.T, dataDir, name, body string) {
	t.Helper()
	dir := filepath.Join(dataDir, "policies")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func newRedis(t *testing.T, dataDir string) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStorage(rdb, dataDir, testLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func newSQLite(t *testing.T, dataDir string) *SQLiteStorage {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "enlisted.db"), dataDir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// enlistedRecord builds a record that has been through a few transitions.
func enlistedRecord(t *testing.T) *session.Record {
	t.Helper()
	world := host.NewSnapshot(time.Date(1084, time.March, 1, 8, 0, 0, 0, time.UTC))
	world.Lords["lord_a"] = host.Lord{ID: "lord_a", Name: "Derthert", Alive: true, PartyID: "party_a"}
	world.Party = host.PlayerParty{ID: "player", AttachedTo: "party_a", TroopCount: 12}

	rec := session.NewRecord("default")
	s := session.New(rec, world, nil, nil)
	require.NoError(t, s.Engine.Enlist(enlistment.LordRef{ID: "lord_a"}))
	_, err := s.Engine.AdvanceTier()
	require.NoError(t, err)
	s.Router.BeginVisit("town_epicrotea")
	return rec
}

func backends(t *testing.T, dataDir string) map[string]storage.Storage {
	r, _ := newRedis(t, dataDir)
	return map[string]storage.Storage{
		"redis":  r,
		"sqlite": newSQLite(t, dataDir),
		"mock":   storage.NewMockStorage(),
	}
}

func TestStorage_SessionRoundTrip(t *testing.T) {
	for name, s := range backends(t, t.TempDir()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Ping(ctx))

			rec := enlistedRecord(t)
			require.NoError(t, s.SaveSession(ctx, rec))

			loaded, err := s.LoadSession(ctx, rec.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, rec.ID, loaded.ID)
			assert.Equal(t, enlistment.StatusActive, loaded.State.Status)
			assert.Equal(t, 2, loaded.State.Tier)
			require.NotNil(t, loaded.State.Lord)
			assert.Equal(t, "Derthert", loaded.State.Lord.Name)
			assert.Equal(t, "town_epicrotea", loaded.Visit.SettlementID)
			assert.Equal(t, "default", loaded.PolicyName)

			// Update in place
			rec.State.Tier = 3
			require.NoError(t, s.SaveSession(ctx, rec))
			loaded, err = s.LoadSession(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, loaded.State.Tier)

			require.NoError(t, s.DeleteSession(ctx, rec.ID))
			loaded, err = s.LoadSession(ctx, rec.ID)
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})
	}
}

func TestStorage_LoadMissingSession(t *testing.T) {
	for name, s := range backends(t, t.TempDir()) {
		t.Run(name, func(t *testing.T) {
			loaded, err := s.LoadSession(context.Background(), uuid.New())
			require.NoError(t, err)
			assert.Nil(t, loaded)
			assert.Error(t, s.SaveSession(context.Background(), nil))
		})
	}
}

func TestRedisStorage_TTL(t *testing.T) {
	s, mr := newRedis(t, t.TempDir())
	s.WithTTL(time.Hour)
	rec := enlistedRecord(t)
	require.NoError(t, s.SaveSession(context.Background(), rec))

	assert.Equal(t, time.Hour, mr.TTL(sessionKey(rec.ID)))
	mr.FastForward(2 * time.Hour)

	loaded, err := s.LoadSession(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStorage_CorruptSession(t *testing.T) {
	s, mr := newRedis(t, t.TempDir())
	id := uuid.New()
	require.NoError(t, mr.Set(sessionKey(id), "{not json"))

	_, err := s.LoadSession(context.Background(), id)
	assert.Error(t, err)
}

func TestSQLiteStorage_CountByStatus(t *testing.T) {
	s := newSQLite(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, enlistedRecord(t)))
	require.NoError(t, s.SaveSession(ctx, enlistedRecord(t)))
	require.NoError(t, s.SaveSession(ctx, session.NewRecord("")))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"active": 2, "discharged": 1}, counts)
}

func TestPolicyFiles(t *testing.T) {
	dataDir := t.TempDir()
	writePolicy(t, dataDir, "harsh", `{"name":"harsh","officer_tier":5,"loot_share":[0,0,0,0,0.2,0.3]}`)
	writePolicy(t, dataDir, "broken", `{"max_tier":0}`)
	writePolicy(t, dataDir, "garbled", `{`)

	pf := policyFiles{dataDir: dataDir, logger: testLogger()}
	ctx := context.Background()

	names, err := pf.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "garbled", "harsh"}, names)

	p, err := pf.GetPolicy(ctx, "harsh")
	require.NoError(t, err)
	assert.Equal(t, 5, p.OfficerTier)
	assert.Equal(t, 0.0, p.LootShareFor(4))
	assert.Equal(t, 6, p.MaxTier, "unset fields keep defaults")

	def, err := pf.GetPolicy(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, enlistment.DefaultPolicy(), def)

	_, err = pf.GetPolicy(ctx, "broken")
	assert.Error(t, err)
	_, err = pf.GetPolicy(ctx, "garbled")
	assert.Error(t, err)
	_, err = pf.GetPolicy(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrPolicyNotFound)
	_, err = pf.GetPolicy(ctx, "../secrets")
	assert.Error(t, err)
}

func TestPolicyFiles_NoDirectory(t *testing.T) {
	pf := policyFiles{dataDir: filepath.Join(t.TempDir(), "nope"), logger: testLogger()}
	names, err := pf.ListPolicies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
