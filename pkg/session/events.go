package session

import (
	"fmt"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
)

// EventType names a host signal the adapter forwards.
type EventType string

const (
	EventBattleStarted     EventType = "battle_started"
	EventBattleEnded       EventType = "battle_ended"
	EventArmyDispersed     EventType = "army_dispersed"
	EventSettlementEntered EventType = "settlement_entered" // entered through the status menu
	EventSettlementLeft    EventType = "settlement_left"
	EventPlayerCaptured    EventType = "player_captured"
	EventPlayerReleased    EventType = "player_released"
	EventLordCaptured      EventType = "lord_captured"
	EventLordReleased      EventType = "lord_released"
	EventLordKilled        EventType = "lord_killed"
	EventDailyTick         EventType = "daily_tick"
	EventNavalDisband      EventType = "naval_disband"
)

// Event is one host signal. Only the fields its type needs are set.
type Event struct {
	Type         EventType `json:"type"`
	BattleID     string    `json:"battle_id,omitempty"`
	Winner       host.Side `json:"winner,omitempty"`
	SettlementID string    `json:"settlement_id,omitempty"`
	LordID       string    `json:"lord_id,omitempty"`
}

// EventResult reports what handling an event did.
type EventResult struct {
	Type      EventType                    `json:"type"`
	Changed   bool                         `json:"changed"`
	Wage      int                          `json:"wage,omitempty"`
	Discharge *enlistment.DischargeOutcome `json:"discharge,omitempty"`
}

// HandleEvent applies a host signal. Signals may arrive more than once or
// out of order; repeats are no-ops. Rejected transitions are logged and
// swallowed since the host has nothing to do with them.
func (s *Session) HandleEvent(ev Event) (EventResult, error) {
	res := EventResult{Type: ev.Type}
	before := s.Engine.Snapshot()
	beforeBattle := s.Record.Battle

	switch ev.Type {
	case EventBattleStarted:
		s.Coordinator.LordEngaged()

	case EventBattleEnded:
		s.Coordinator.BattleEnded(ev.BattleID, ev.Winner)

	case EventArmyDispersed:
		s.staleCheck()
		s.Engine.Reconcile()

	case EventSettlementEntered:
		if ev.SettlementID == "" {
			return res, fmt.Errorf("%s event requires settlement_id", ev.Type)
		}
		if !s.Engine.IsActive() {
			return res, &enlistment.TransitionError{Op: "visit", Code: enlistment.CodeNotActive, Message: "only active soldiers visit through the status menu"}
		}
		s.Router.BeginVisit(ev.SettlementID)
		res.Changed = true

	case EventSettlementLeft:
		res.Changed = s.Router.EndVisit()

	case EventPlayerCaptured:
		s.Coordinator.Cleanup("player captured")
		s.Router.EndVisit()
		s.Engine.EnterCaptivity()

	case EventPlayerReleased:
		s.Engine.ExitCaptivity()

	case EventLordCaptured:
		if !s.isCurrentLord(ev.LordID) {
			break
		}
		s.Coordinator.Cleanup("lord captured")
		if s.Engine.IsActive() || s.Engine.IsOnLeave() {
			s.logIgnored(ev, s.Engine.BeginGracePeriod())
		}

	case EventLordReleased:
		if s.isCurrentLord(ev.LordID) && s.Engine.IsInGracePeriod() {
			s.logIgnored(ev, s.Engine.EndGracePeriod())
		}

	case EventLordKilled:
		if !s.isCurrentLord(ev.LordID) {
			break
		}
		s.Coordinator.Cleanup("lord killed")
		out, err := s.Engine.Discharge(enlistment.ReasonLordDefeatedOrCaptured)
		s.logIgnored(ev, err)
		if err == nil {
			res.Discharge = &out
		}

	case EventDailyTick:
		s.Engine.ClearExpiredProtection()
		s.staleCheck()
		expired, err := s.Engine.ExpireGracePeriod()
		s.logIgnored(ev, err)
		if expired {
			s.logger.Info("Grace period ran out, discharged")
		}
		res.Wage = s.Economy.DailyWage()

	case EventNavalDisband:
		s.Coordinator.Cleanup("naval disband")

	default:
		return res, fmt.Errorf("unknown event type %q", ev.Type)
	}

	beforeVisit := s.Record.Visit.Active()
	s.leftService()
	if beforeVisit && !s.Record.Visit.Active() {
		res.Changed = true
	}

	if !res.Changed {
		after := s.Engine.Snapshot()
		res.Changed = !stateEqual(before, after) || beforeBattle != s.Record.Battle
	}
	s.logger.Debug("Host event handled", "type", ev.Type, "changed", res.Changed)
	return res, nil
}

func (s *Session) isCurrentLord(id string) bool {
	lord := s.Engine.CurrentLord()
	return lord != nil && (id == "" || id == lord.ID)
}

func (s *Session) logIgnored(ev Event, err error) {
	if err != nil {
		s.logger.Warn("Host event transition rejected", "type", ev.Type, "error", err)
	}
}

func stateEqual(a, b enlistment.State) bool {
	same := func(x, y *enlistment.LordRef) bool {
		return (x == nil && y == nil) || (x != nil && y != nil && *x == *y)
	}
	return a.Status == b.Status &&
		a.Tier == b.Tier &&
		a.WaitingInReserve == b.WaitingInReserve &&
		a.Captive == b.Captive &&
		a.GraceProtectionUntil.Equal(b.GraceProtectionUntil) &&
		same(a.Lord, b.Lord)
}
