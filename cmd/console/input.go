package main

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// action is one parsed line of console input. Exactly one field is set.
type action struct {
	Command *session.Command
	Event   *session.Event
	Local   string // slash command handled by the console itself
}

// parseInput turns a typed line into an action.
//
//	enlist <lord_id> [display name]
//	discharge [reason]
//	visit <settlement_id>
//	<command>                       any other command by name
//	!<event> [args]                 send a host event
//	/help, /economy, /refresh, /quit
func parseInput(line string) (action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return action{}, fmt.Errorf("empty input")
	}

	head := fields[0]
	args := fields[1:]

	if strings.HasPrefix(head, "/") {
		return action{Local: strings.ToLower(head)}, nil
	}
	if strings.HasPrefix(head, "!") {
		ev, err := parseEvent(strings.TrimPrefix(head, "!"), args)
		if err != nil {
			return action{}, err
		}
		return action{Event: ev}, nil
	}

	cmdType, err := session.ParseCommandType(head)
	if err != nil {
		return action{}, err
	}
	cmd := &session.Command{Type: cmdType}

	switch cmdType {
	case session.CmdEnlist:
		if len(args) == 0 {
			return action{}, fmt.Errorf("usage: enlist <lord_id> [name]")
		}
		cmd.Lord = &enlistment.LordRef{ID: args[0], Name: strings.Join(args[1:], " ")}
	case session.CmdDischarge:
		cmd.Reason = enlistment.ReasonVoluntary
		if len(args) > 0 {
			cmd.Reason = enlistment.DischargeReason(strings.ToLower(args[0]))
			if !cmd.Reason.Valid() {
				return action{}, fmt.Errorf("unknown discharge reason %q", args[0])
			}
		}
	case session.CmdVisit:
		if len(args) == 0 {
			return action{}, fmt.Errorf("usage: visit <settlement_id>")
		}
		cmd.SettlementID = args[0]
	}
	return action{Command: cmd}, nil
}

func parseEvent(name string, args []string) (*session.Event, error) {
	ev := &session.Event{Type: session.EventType(strings.ToLower(name))}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch ev.Type {
	case session.EventBattleStarted, session.EventArmyDispersed, session.EventPlayerCaptured,
		session.EventPlayerReleased, session.EventSettlementLeft, session.EventDailyTick,
		session.EventNavalDisband:
	case session.EventBattleEnded:
		ev.BattleID = arg(0)
		ev.Winner = host.Side(arg(1))
		if ev.Winner != host.SideNone && ev.Winner != host.SideAttacker && ev.Winner != host.SideDefender {
			return nil, fmt.Errorf("winner must be attacker or defender")
		}
	case session.EventSettlementEntered:
		if ev.SettlementID = arg(0); ev.SettlementID == "" {
			return nil, fmt.Errorf("usage: !settlement_entered <settlement_id>")
		}
	case session.EventLordCaptured, session.EventLordReleased, session.EventLordKilled:
		if ev.LordID = arg(0); ev.LordID == "" {
			return nil, fmt.Errorf("usage: !%s <lord_id>", ev.Type)
		}
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	return ev, nil
}
