package battle

import (
	"time"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/menu"
)

// Phase is the player's position in a single battle.
//
//	not_in_battle -> reserve -> deployed -> cleanup -> not_in_battle
type Phase string

const (
	PhaseNotInBattle Phase = "not_in_battle"
	PhaseReserve     Phase = "reserve"
	PhaseDeployed    Phase = "deployed"
	PhaseCleanup     Phase = "cleanup"
)

// Tracker is the per-battle state. It is persisted with the session so a
// battle can span several requests.
type Tracker struct {
	Phase     Phase     `json:"phase,omitempty"`
	BattleID  string    `json:"battle_id,omitempty"`
	Side      host.Side `json:"side,omitempty"`
	EngagedAt time.Time `json:"engaged_at,omitzero"`

	LastBattleID string    `json:"last_battle_id,omitempty"`
	LastWinner   host.Side `json:"last_winner,omitempty"`
	LastLordWon  bool      `json:"last_lord_won,omitempty"`
}

// Current returns the phase, treating the zero value as not in battle.
func (t Tracker) Current() Phase {
	if t.Phase == "" {
		return PhaseNotInBattle
	}
	return t.Phase
}

// InBattle reports whether a battle is being tracked.
func (t Tracker) InBattle() bool {
	p := t.Current()
	return p == PhaseReserve || p == PhaseDeployed
}

func (c *Coordinator) track(battleID string, side host.Side, phase Phase) {
	if c.tracker.BattleID != battleID {
		c.tracker.EngagedAt = c.engine.Now()
	}
	c.tracker.Phase = phase
	c.tracker.BattleID = battleID
	c.tracker.Side = side
}

// LordEngaged starts tracking the lord's current battle. The player begins
// unplaced, in the reserve phase. It reports whether a battle is tracked
// afterwards; repeated calls for the same battle are no-ops.
func (c *Coordinator) LordEngaged() bool {
	if !c.engine.IsEmbeddedWithLord() {
		return false
	}
	b, side, ok := c.engine.LordBattle()
	if !ok {
		return false
	}
	if c.tracker.InBattle() && c.tracker.BattleID == b.ID {
		return true
	}
	if c.tracker.InBattle() {
		c.logger.Warn("Lord engaged in a new battle before cleanup", "previous", c.tracker.BattleID, "battle_id", b.ID)
		c.Cleanup("superseded by " + b.ID)
	}
	c.track(b.ID, side, PhaseReserve)
	c.logger.Info("Lord engaged", "battle_id", b.ID, "side", side)
	return true
}

// WaitInReserve keeps the player out of the formations of the lord's
// battle. The reserve flag is set through the engine.
func (c *Coordinator) WaitInReserve() (Decision, error) {
	if !c.tracker.InBattle() && !c.LordEngaged() {
		return Decision{}, &enlistment.TransitionError{
			Op:      "wait_in_reserve",
			Code:    enlistment.CodeNoActiveBattle,
			Message: "lord has no battle to wait on",
		}
	}
	if err := c.engine.EnterReserve(); err != nil {
		return Decision{}, err
	}
	c.tracker.Phase = PhaseReserve
	d := Decision{
		Outcome:  OutcomeReserve,
		Reason:   "player chose to wait in reserve",
		BattleID: c.tracker.BattleID,
		Side:     c.tracker.Side,
		Menu:     menu.BattleWait,
		At:       c.engine.Now(),
	}
	c.publish(d)
	return d, nil
}

// Deploy moves the player from reserve into the battle, for example when the
// host spawns the player into a formation. Deploying twice is a no-op.
func (c *Coordinator) Deploy() bool {
	if c.tracker.Current() != PhaseReserve {
		return false
	}
	c.engine.ExitReserve()
	c.tracker.Phase = PhaseDeployed
	c.logger.Info("Deployed into battle", "battle_id", c.tracker.BattleID, "side", c.tracker.Side)
	return true
}

// BattleEnded records the winner of a battle and cleans up. Signals for a
// battle other than the tracked one only clean a stale reserve flag.
func (c *Coordinator) BattleEnded(battleID string, winner host.Side) bool {
	if c.tracker.InBattle() && (battleID == "" || battleID == c.tracker.BattleID) {
		c.tracker.LastBattleID = c.tracker.BattleID
		c.tracker.LastWinner = winner
		c.tracker.LastLordWon = winner != host.SideNone && winner == c.tracker.Side
		c.tracker.Phase = PhaseCleanup
		c.logger.Info("Battle ended", "battle_id", c.tracker.BattleID, "winner", winner, "lord_won", c.tracker.LastLordWon)
	}
	return c.Cleanup("battle ended")
}

// Cleanup returns the player to not-in-battle and clears the reserve flag.
// It may be called any number of times from any signal; when there is
// nothing to clean it does nothing and returns false.
func (c *Coordinator) Cleanup(reason string) bool {
	if c.tracker.Current() == PhaseNotInBattle && !c.engine.IsWaitingInReserve() {
		return false
	}
	c.engine.ExitReserve()
	battleID := c.tracker.BattleID
	if battleID != "" && c.tracker.LastBattleID != battleID {
		c.tracker.LastBattleID = battleID
	}
	c.tracker.Phase = PhaseNotInBattle
	c.tracker.BattleID = ""
	c.tracker.Side = host.SideNone
	c.tracker.EngagedAt = time.Time{}
	c.logger.Info("Battle cleanup", "battle_id", battleID, "reason", reason)
	return true
}

// StaleCheck cleans up when the tracked battle or the reserve flag has
// outlived its context: the battle is gone or already has a winner.
func (c *Coordinator) StaleCheck() bool {
	world := c.engine.World()
	if world == nil {
		return false
	}
	if c.tracker.InBattle() {
		b, ok := world.Battle(c.tracker.BattleID)
		if !ok {
			return c.Cleanup("tracked battle no longer exists")
		}
		if b.Finished() {
			return c.BattleEnded(b.ID, b.Winner)
		}
		return false
	}
	if c.engine.IsWaitingInReserve() {
		if _, _, ok := c.engine.LordBattle(); !ok {
			return c.Cleanup("reserve flag without a lord battle")
		}
	}
	return false
}
