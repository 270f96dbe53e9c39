package session

import (
	"io"
	"log/slog"

	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/economy"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/menu"
)

// Listener receives every event a session raises.
type Listener interface {
	enlistment.Listener
	battle.Listener
}

// Session wires the engine, coordinator, economy layer and router over one
// record and one world snapshot. Components write through to the record.
type Session struct {
	Record      *Record
	World       *host.Snapshot
	Engine      *enlistment.Engine
	Coordinator *battle.Coordinator
	Economy     *economy.Layer
	Router      *menu.Router

	// blind is set when the caller sent no world. An empty snapshot says
	// nothing about which battles exist, so nothing is cleaned against it.
	blind  bool
	logger *slog.Logger
}

// New builds a session over rec. A nil world is replaced by an empty
// snapshot at the record's last campaign time, which makes every decision
// fail open. A world without a time gets the same campaign time.
func New(rec *Record, world *host.Snapshot, policy *enlistment.Policy, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	blind := world == nil
	if blind {
		world = host.NewSnapshot(rec.CampaignTime)
	}
	if world.Time.IsZero() {
		world.Time = rec.CampaignTime
	} else {
		rec.CampaignTime = world.Time
	}
	if world.Lords == nil {
		world.Lords = make(map[string]host.Lord)
	}
	logger = logger.With("session_id", rec.ID)

	engine := enlistment.NewEngine(&rec.State, policy, logger).
		WithWorld(world).
		WithClock(world)
	coordinator := battle.NewCoordinator(engine, &rec.Battle, logger).
		WithActions(world)
	router := menu.NewRouter(engine, &rec.Visit, logger)
	if !blind {
		router.WithCleaner(coordinator)
	}

	return &Session{
		Record:      rec,
		World:       world,
		Engine:      engine,
		Coordinator: coordinator,
		Economy:     economy.NewLayer(engine, logger),
		Router:      router,
		blind:       blind,
		logger:      logger,
	}
}

// WithListener routes status changes, anomalies and participation
// decisions to l.
// Returns the Session for method chaining
func (s *Session) WithListener(l Listener) *Session {
	s.Engine.WithListener(l)
	s.Coordinator.WithListener(l)
	return s
}

// HasWorld reports whether the caller supplied a world snapshot.
func (s *Session) HasWorld() bool { return !s.blind }

// Sweep runs the load-time housekeeping: invalid records are normalised,
// expired protection is dropped and battles that ended while nobody was
// looking are cleaned up. It returns the anomalies found.
func (s *Session) Sweep() []enlistment.Anomaly {
	anomalies := s.Engine.Reconcile()
	if s.staleCheck() {
		s.logger.Info("Stale battle cleaned on load")
	}
	return anomalies
}

// staleCheck runs the coordinator's stale-battle check, but only against a
// world the caller actually sent.
func (s *Session) staleCheck() bool {
	if s.blind {
		return false
	}
	return s.Coordinator.StaleCheck()
}

// leftService ends any settlement visit once the player is no longer on
// active duty. Visits only make sense while serving.
func (s *Session) leftService() {
	if !s.Engine.IsActive() && s.Router.EndVisit() {
		s.logger.Debug("Visit ended with service", "status", s.Engine.Status())
	}
}

// Touch stamps the record as updated.
func (s *Session) Touch() {
	s.Record.UpdatedAt = host.SystemClock.Now()
}

// Save encodes the enlistment record for the host's save file.
func (s *Session) Save() ([]byte, error) {
	return s.Engine.Save()
}

// Restore loads a save. Battle and visit state are not part of a save and
// start fresh.
func (s *Session) Restore(data []byte) error {
	if err := s.Engine.Restore(data); err != nil {
		return err
	}
	s.Record.Battle = battle.Tracker{}
	s.Record.Visit = menu.Visit{}
	return nil
}
