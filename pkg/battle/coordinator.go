// Package battle decides how the player's party takes part in encounters and
// battles while enlisted, and tracks the player's side of a single battle.
package battle

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/menu"
)

// Outcome is what the coordinator wants the host to do with an encounter.
type Outcome string

const (
	OutcomeAutoJoin Outcome = "auto_join" // join on the lord's side
	OutcomeReserve  Outcome = "reserve"   // stay out of the formations for now
	OutcomeBlock    Outcome = "block"     // do not create the encounter
	OutcomeNative   Outcome = "native"    // let the host's own flow run
)

// EncounterKind distinguishes hostile engagements from peaceful meetings.
type EncounterKind string

const (
	EncounterBattle  EncounterKind = "battle"
	EncounterMeeting EncounterKind = "meeting"
)

// Encounter is an encounter the host is about to create that involves the
// player's party.
type Encounter struct {
	Kind            EncounterKind `json:"kind"`
	AttackerPartyID string        `json:"attacker_party_id"`
	DefenderPartyID string        `json:"defender_party_id"`
}

// Other returns the party on the far side of the encounter from partyID.
func (enc Encounter) Other(partyID string) string {
	switch partyID {
	case enc.AttackerPartyID:
		return enc.DefenderPartyID
	case enc.DefenderPartyID:
		return enc.AttackerPartyID
	}
	return ""
}

// Decision is the coordinator's answer for one encounter.
type Decision struct {
	Outcome  Outcome   `json:"outcome"`
	Rule     int       `json:"rule"` // priority rule that decided, 0 when no world was available
	Reason   string    `json:"reason"`
	BattleID string    `json:"battle_id,omitempty"`
	Side     host.Side `json:"side,omitempty"`
	Menu     menu.ID   `json:"menu,omitempty"`
	At       time.Time `json:"at"`
}

// Allows reports whether the host may go ahead with the encounter.
func (d Decision) Allows() bool {
	return d.Outcome == OutcomeAutoJoin || d.Outcome == OutcomeNative
}

// Listener receives every participation decision.
type Listener interface {
	OnBattleParticipationDecided(Decision)
}

// Coordinator decides encounter participation. It reads the service record
// through the engine and changes it only through engine commands.
type Coordinator struct {
	engine   *enlistment.Engine
	tracker  *Tracker
	actions  host.Actions
	listener Listener
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over engine. tracker holds the
// per-battle phase and is owned by the campaign session; nil starts a fresh
// one.
func NewCoordinator(engine *enlistment.Engine, tracker *Tracker, logger *slog.Logger) *Coordinator {
	if tracker == nil {
		tracker = &Tracker{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		engine:  engine,
		tracker: tracker,
		logger:  logger,
	}
}

// WithActions sets the host operations used to join battles.
// Returns the Coordinator for method chaining
func (c *Coordinator) WithActions(a host.Actions) *Coordinator {
	c.actions = a
	return c
}

// WithListener sets the receiver of participation decisions.
// Returns the Coordinator for method chaining
func (c *Coordinator) WithListener(l Listener) *Coordinator {
	c.listener = l
	return c
}

// Tracker returns a copy of the per-battle state.
func (c *Coordinator) Tracker() Tracker { return *c.tracker }

// DecideEncounter runs the participation rules in priority order; the first
// rule that matches decides. When a collaborator is missing the answer falls
// back to the host's own behaviour.
func (c *Coordinator) DecideEncounter(enc Encounter) Decision {
	d := c.decide(enc)
	d.At = c.engine.Now()
	c.logger.Debug("Encounter decided",
		"outcome", d.Outcome,
		"rule", d.Rule,
		"reason", d.Reason,
		"attacker", enc.AttackerPartyID,
		"defender", enc.DefenderPartyID)
	c.publish(d)
	return d
}

func (c *Coordinator) decide(enc Encounter) Decision {
	world := c.engine.World()
	if world == nil {
		return Decision{Outcome: OutcomeNative, Reason: "no world view"}
	}
	player := world.Player()

	// 1. Captivity transport must be free to move the player around.
	if player.Prisoner || c.engine.IsCaptive() {
		return Decision{Outcome: OutcomeNative, Rule: 1, Reason: "player is a prisoner"}
	}

	// 2. Reserve keeps the player out of new encounters until the battle resolves.
	if c.engine.IsWaitingInReserve() {
		if c.engine.IsActive() {
			return Decision{Outcome: OutcomeBlock, Rule: 2, Reason: "waiting in reserve"}
		}
		c.engine.ExitReserve()
	}

	// 3. Just-separated parties are shielded until cleanup finishes.
	if c.engine.HasActiveGraceProtection() {
		return Decision{Outcome: OutcomeBlock, Rule: 3, Reason: "grace protection active"}
	}

	// 4. Independent operation.
	if !c.engine.IsEmbeddedWithLord() {
		return Decision{Outcome: OutcomeNative, Rule: 4, Reason: "not embedded with lord"}
	}

	other := enc.Other(player.ID)
	lordParties := c.engine.LordPartyIDs()

	// 5. Stray meeting with the lord's own party.
	if enc.Kind == EncounterMeeting && slices.Contains(lordParties, other) && !player.Active {
		return Decision{Outcome: OutcomeBlock, Rule: 5, Reason: "stray meeting with lord's party"}
	}

	// 6. The lord is fighting the party on the other side: join on the lord's side.
	if b, side, ok := c.engine.LordBattle(); ok && player.BattleID != b.ID {
		opponents := b.Defenders
		if side == host.SideDefender {
			opponents = b.Attackers
		}
		if other != "" && slices.Contains(opponents, other) {
			return c.autoJoin(b, side)
		}
	}

	// 7. Already inside a map event: never spawn a duplicate.
	if player.BattleID != "" {
		return Decision{Outcome: OutcomeBlock, Rule: 7, Reason: "already in battle " + player.BattleID}
	}

	// 8. Embedded soldiers never trigger encounters on their own.
	return Decision{Outcome: OutcomeBlock, Rule: 8, Reason: "embedded soldier cannot start encounters"}
}

func (c *Coordinator) autoJoin(b *host.Battle, side host.Side) Decision {
	if c.actions == nil {
		c.logger.Warn("Cannot auto-join without host actions, falling back to chooser", "battle_id", b.ID)
		return Decision{Outcome: OutcomeNative, Rule: 6, Reason: "no host actions to join battle", BattleID: b.ID, Menu: menu.JoinEncounter}
	}
	if err := c.actions.JoinBattle(b.ID, side); err != nil {
		c.logger.Warn("Auto-join failed, falling back to chooser", "battle_id", b.ID, "side", side, "error", err)
		return Decision{
			Outcome:  OutcomeNative,
			Rule:     6,
			Reason:   fmt.Sprintf("join failed: %v", err),
			BattleID: b.ID,
			Menu:     menu.JoinEncounter,
		}
	}
	c.track(b.ID, side, PhaseDeployed)
	return Decision{
		Outcome:  OutcomeAutoJoin,
		Rule:     6,
		Reason:   "lord is in battle against this party",
		BattleID: b.ID,
		Side:     side,
		Menu:     menu.Encounter,
	}
}

func (c *Coordinator) publish(d Decision) {
	if c.listener != nil {
		c.listener.OnBattleParticipationDecided(d)
	}
}
