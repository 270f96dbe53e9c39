package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
)

// CommandType names a player or adapter command.
type CommandType string

const (
	CmdEnlist           CommandType = "enlist"
	CmdDischarge        CommandType = "discharge"
	CmdBeginLeave       CommandType = "begin_leave"
	CmdEndLeave         CommandType = "end_leave"
	CmdEnterReserve     CommandType = "enter_reserve"
	CmdExitReserve      CommandType = "exit_reserve"
	CmdDeploy           CommandType = "deploy"
	CmdAdvanceTier      CommandType = "advance_tier"
	CmdBeginGracePeriod CommandType = "begin_grace_period"
	CmdEndGracePeriod   CommandType = "end_grace_period"
	CmdVisit            CommandType = "visit"
	CmdEndVisit         CommandType = "end_visit"
)

// ParseCommandType normalises a command name.
func ParseCommandType(s string) (CommandType, error) {
	c := CommandType(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "-", "_"))
	switch c {
	case CmdEnlist, CmdDischarge, CmdBeginLeave, CmdEndLeave, CmdEnterReserve, CmdExitReserve,
		CmdDeploy, CmdAdvanceTier, CmdBeginGracePeriod, CmdEndGracePeriod, CmdVisit, CmdEndVisit:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Command is a request to change the record.
type Command struct {
	Type         CommandType                `json:"command"`
	Lord         *enlistment.LordRef        `json:"lord,omitempty"`
	Reason       enlistment.DischargeReason `json:"reason,omitempty"`
	SettlementID string                     `json:"settlement_id,omitempty"`
}

// CommandResult is the outcome of a command that was applied.
type CommandResult struct {
	Command   CommandType                  `json:"command"`
	Changed   bool                         `json:"changed"`
	Tier      int                          `json:"tier,omitempty"`
	Discharge *enlistment.DischargeOutcome `json:"discharge,omitempty"`
	Decision  *battle.Decision             `json:"decision,omitempty"`
}

// Execute applies cmd. Rejections come back as *enlistment.TransitionError.
func (s *Session) Execute(cmd Command) (CommandResult, error) {
	res := CommandResult{Command: cmd.Type}
	var err error

	switch cmd.Type {
	case CmdEnlist:
		if cmd.Lord == nil {
			return res, &enlistment.TransitionError{Op: "enlist", Code: enlistment.CodeInvalidLord, Message: "no lord given"}
		}
		err = s.Engine.Enlist(*cmd.Lord)
		res.Changed = err == nil
		res.Tier = s.Engine.Tier()
		if err == nil {
			s.Router.EndVisit()
		}

	case CmdDischarge:
		reason := cmd.Reason
		if reason == "" {
			reason = enlistment.ReasonVoluntary
		}
		var out enlistment.DischargeOutcome
		out, err = s.Engine.Discharge(reason)
		if err == nil {
			res.Changed = true
			res.Discharge = &out
			s.Coordinator.Cleanup("discharge")
		}

	case CmdBeginLeave:
		err = s.Engine.BeginLeave()
		res.Changed = err == nil

	case CmdEndLeave:
		err = s.Engine.EndLeave()
		res.Changed = err == nil

	case CmdEnterReserve:
		var d battle.Decision
		d, err = s.Coordinator.WaitInReserve()
		if err == nil {
			res.Changed = true
			res.Decision = &d
		}

	case CmdExitReserve:
		res.Changed = s.Coordinator.Cleanup("player left reserve")

	case CmdDeploy:
		res.Changed = s.Coordinator.Deploy()

	case CmdAdvanceTier:
		res.Tier, err = s.Engine.AdvanceTier()
		res.Changed = err == nil

	case CmdBeginGracePeriod:
		err = s.Engine.BeginGracePeriod()
		if err == nil {
			res.Changed = true
			s.Coordinator.Cleanup("grace period")
		}

	case CmdEndGracePeriod:
		err = s.Engine.EndGracePeriod()
		res.Changed = err == nil

	case CmdVisit:
		if cmd.SettlementID == "" {
			return res, fmt.Errorf("visit requires settlement_id")
		}
		if !s.Engine.IsActive() {
			return res, &enlistment.TransitionError{Op: "visit", Code: enlistment.CodeNotActive, Message: "only active soldiers visit through the status menu"}
		}
		s.Router.BeginVisit(cmd.SettlementID)
		res.Changed = true

	case CmdEndVisit:
		res.Changed = s.Router.EndVisit()

	default:
		return res, fmt.Errorf("unknown command %q", cmd.Type)
	}

	s.leftService()
	return res, err
}

// Query is the full read surface for one snapshot.
type Query struct {
	Status                   enlistment.Status   `json:"status"`
	Lord                     *enlistment.LordRef `json:"lord,omitempty"`
	Tier                     int                 `json:"tier"`
	IsActive                 bool                `json:"is_active"`
	IsOnLeave                bool                `json:"is_on_leave"`
	IsInGracePeriod          bool                `json:"is_in_grace_period"`
	IsWaitingInReserve       bool                `json:"is_waiting_in_reserve"`
	IsCaptive                bool                `json:"is_captive"`
	IsEmbeddedWithLord       bool                `json:"is_embedded_with_lord"`
	HasActiveGraceProtection bool                `json:"has_active_grace_protection"`
	GraceProtectionUntil     time.Time           `json:"grace_protection_until,omitzero"`
	ProjectedDailyWage       int                 `json:"projected_daily_wage"`
	BattlePhase              battle.Phase        `json:"battle_phase"`
	BattleID                 string              `json:"battle_id,omitempty"`
	VisitingSettlement       string              `json:"visiting_settlement,omitempty"`
}

// Query answers every query at once.
func (s *Session) Query() Query {
	st := s.Engine.Snapshot()
	tr := s.Coordinator.Tracker()
	q := Query{
		Status:                   st.Status,
		Lord:                     s.Engine.CurrentLord(),
		Tier:                     st.Tier,
		IsActive:                 s.Engine.IsActive(),
		IsOnLeave:                s.Engine.IsOnLeave(),
		IsInGracePeriod:          s.Engine.IsInGracePeriod(),
		IsWaitingInReserve:       s.Engine.IsWaitingInReserve(),
		IsCaptive:                s.Engine.IsCaptive(),
		IsEmbeddedWithLord:       s.Engine.IsEmbeddedWithLord(),
		HasActiveGraceProtection: s.Engine.HasActiveGraceProtection(),
		ProjectedDailyWage:       s.Engine.ProjectedDailyWage(),
		BattlePhase:              tr.Current(),
		BattleID:                 tr.BattleID,
		VisitingSettlement:       s.Router.Visit().SettlementID,
	}
	if q.HasActiveGraceProtection {
		q.GraceProtectionUntil = st.GraceProtectionUntil
	}
	return q
}
