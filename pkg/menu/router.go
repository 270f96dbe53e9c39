// Package menu decides when the host's choice of top-level menu must be
// overridden for an enlisted player.
package menu

import (
	"io"
	"log/slog"
	"time"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
)

// Cleaner tears down per-battle state. The battle coordinator implements it.
type Cleaner interface {
	Cleanup(reason string) bool
}

// Request is a menu the host is about to show.
type Request struct {
	Menu     ID     `json:"menu"`
	BattleID string `json:"battle_id,omitempty"` // battle behind a combat menu
	SiegeID  string `json:"siege_id,omitempty"`  // siege behind a siege menu
}

// Route is the routing answer. When Override is false the host shows its
// own choice.
type Route struct {
	Menu     ID     `json:"menu"`
	Override bool   `json:"override"`
	Rule     int    `json:"rule"`
	Reason   string `json:"reason"`
	Cleanup  bool   `json:"cleanup,omitempty"`
}

// Visit records a settlement visit the player chose from the status menu.
type Visit struct {
	SettlementID string    `json:"settlement_id,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
}

// Active reports whether a visit is in progress.
func (v Visit) Active() bool { return v.SettlementID != "" }

// Router applies the routing rules.
type Router struct {
	engine  *enlistment.Engine
	cleaner Cleaner
	visit   *Visit
	logger  *slog.Logger
}

// NewRouter creates a router. visit is owned by the campaign session; nil
// starts with no visit.
func NewRouter(engine *enlistment.Engine, visit *Visit, logger *slog.Logger) *Router {
	if visit == nil {
		visit = &Visit{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{engine: engine, visit: visit, logger: logger}
}

// WithCleaner sets what runs battle cleanup for stale menus.
// Returns the Router for method chaining
func (r *Router) WithCleaner(c Cleaner) *Router {
	r.cleaner = c
	return r
}

// BeginVisit marks an explicit visit to settlementID.
func (r *Router) BeginVisit(settlementID string) {
	r.visit.SettlementID = settlementID
	r.visit.StartedAt = r.engine.Now()
	r.logger.Debug("Settlement visit started", "settlement_id", settlementID)
}

// EndVisit clears the visit flag and reports whether one was set.
func (r *Router) EndVisit() bool {
	if !r.visit.Active() {
		return false
	}
	r.logger.Debug("Settlement visit ended", "settlement_id", r.visit.SettlementID)
	*r.visit = Visit{}
	return true
}

// Visit returns the current visit.
func (r *Router) Visit() Visit { return *r.visit }

// Route decides which menu to show for req.
func (r *Router) Route(req Request) Route {
	rt := r.route(req)
	if !rt.Override {
		rt.Menu = req.Menu
	}
	r.logger.Debug("Menu routed",
		"requested", req.Menu,
		"menu", rt.Menu,
		"rule", rt.Rule,
		"reason", rt.Reason)
	return rt
}

func (r *Router) route(req Request) Route {
	if !r.engine.IsActive() && !r.engine.IsOnLeave() && !r.engine.IsInGracePeriod() {
		return Route{Reason: "not enlisted"}
	}

	// 1. Reserve holds the player on the battle-wait menu.
	if r.engine.IsWaitingInReserve() {
		if _, _, ok := r.engine.LordBattle(); ok && r.engine.IsActive() {
			return Route{Menu: BattleWait, Override: true, Rule: 1, Reason: "waiting in reserve"}
		}
		r.cleanup("reserve flag without an ongoing battle")
	}

	world := r.engine.World()
	lord, ok := r.engine.Lord()
	if world == nil || !ok {
		return Route{Reason: "lord unavailable"}
	}

	// 2. A visit the player asked for.
	if r.visit.Active() {
		return Route{Rule: 2, Reason: "explicit visit to " + r.visit.SettlementID}
	}

	// 3. Siege menus belong to the host while the siege stands.
	for _, siegeID := range r.lordSieges(lord.SiegeID, lord.ArmyLeaderID) {
		if s, ok := world.Siege(siegeID); ok && s.Active {
			return Route{Rule: 3, Reason: "lord is in siege " + siegeID}
		}
	}

	// 4. Captivity menus.
	if r.engine.IsCaptive() || world.Player().Prisoner {
		return Route{Rule: 4, Reason: "player is a prisoner"}
	}

	// 5. Combat menu left over from a finished battle or a lifted siege.
	if req.Menu.IsCombat() && r.engine.IsActive() && r.stale(req) {
		r.cleanup("stale combat menu " + string(req.Menu))
		return Route{Menu: Status, Override: true, Rule: 5, Reason: "stale combat menu", Cleanup: true}
	}

	// 6. Independent-party menus while embedded.
	if req.Menu.IsIndependent() && r.engine.IsEmbeddedWithLord() {
		return Route{Menu: Status, Override: true, Rule: 6, Reason: "embedded with lord"}
	}

	return Route{Reason: "host default"}
}

func (r *Router) lordSieges(siegeID, armyLeaderID string) []string {
	var ids []string
	if siegeID != "" {
		ids = append(ids, siegeID)
	}
	if armyLeaderID != "" {
		if leader, ok := r.engine.World().Lord(armyLeaderID); ok && leader.SiegeID != "" && leader.SiegeID != siegeID {
			ids = append(ids, leader.SiegeID)
		}
	}
	return ids
}

func (r *Router) stale(req Request) bool {
	world := r.engine.World()
	if req.BattleID != "" {
		b, ok := world.Battle(req.BattleID)
		if !ok || b.Finished() {
			return true
		}
	}
	if req.Menu.IsSiege() && req.SiegeID != "" {
		s, ok := world.Siege(req.SiegeID)
		if !ok || !s.Active {
			return true
		}
	}
	return false
}

func (r *Router) cleanup(reason string) {
	r.logger.Info("Menu cleanup", "reason", reason)
	if r.cleaner != nil {
		r.cleaner.Cleanup(reason)
	}
	r.engine.ExitReserve()
}
