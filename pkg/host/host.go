// Package host describes the facts the embedded-service core needs from the
// campaign simulation. Adapters on the host side fill these in; the core
// never reaches into host internals directly.
package host

import "time"

// Side is the side of a battle a party fights on.
type Side string

const (
	SideNone     Side = ""
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
)

// Opposite returns the other side of a battle.
func (s Side) Opposite() Side {
	switch s {
	case SideAttacker:
		return SideDefender
	case SideDefender:
		return SideAttacker
	default:
		return SideNone
	}
}

// Lord is a commanding actor the player may serve.
type Lord struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Alive        bool    `json:"alive"`
	Prisoner     bool    `json:"prisoner,omitempty"`
	PartyID      string  `json:"party_id,omitempty"`      // empty when the lord has no party on the map
	ArmyLeaderID string  `json:"army_leader_id,omitempty"` // lord ID leading the army this lord is in
	Gold         int     `json:"gold"`
	Food         float64 `json:"food"`
	SiegeID      string  `json:"siege_id,omitempty"` // siege the lord's party is besieging or defending
}

// HasParty reports whether the lord currently leads a party on the map.
func (l *Lord) HasParty() bool {
	return l != nil && l.PartyID != ""
}

// PlayerParty is the player's own party as the host sees it.
type PlayerParty struct {
	ID           string  `json:"id"`
	Active       bool    `json:"active"`                  // visible and active on the campaign map
	AttachedTo   string  `json:"attached_to,omitempty"`   // party the player is escorting/attached to
	NearPartyID  string  `json:"near_party_id,omitempty"` // party the player is co-located with
	BattleID     string  `json:"battle_id,omitempty"`     // map event the player party is inside
	Prisoner     bool    `json:"prisoner,omitempty"`
	TroopCount   int     `json:"troop_count"`
	Food         float64 `json:"food"`
	SettlementID string  `json:"settlement_id,omitempty"`
}

// Battle is an active (or just finished) map event.
type Battle struct {
	ID        string   `json:"id"`
	Attackers []string `json:"attackers"` // party IDs
	Defenders []string `json:"defenders"` // party IDs
	Winner    Side     `json:"winner,omitempty"`
	Siege     bool     `json:"siege,omitempty"`
}

// Finished reports whether the battle already has a winner.
func (b *Battle) Finished() bool {
	return b != nil && b.Winner != SideNone
}

// SideOf returns which side a party fights on, or SideNone.
func (b *Battle) SideOf(partyID string) Side {
	if b == nil || partyID == "" {
		return SideNone
	}
	for _, id := range b.Attackers {
		if id == partyID {
			return SideAttacker
		}
	}
	for _, id := range b.Defenders {
		if id == partyID {
			return SideDefender
		}
	}
	return SideNone
}

// Siege is a siege event around a settlement.
type Siege struct {
	ID           string `json:"id"`
	SettlementID string `json:"settlement_id"`
	BesiegerID   string `json:"besieger_id"` // party leading the siege
	Active       bool   `json:"active"`
}

// World answers read-only questions about the host simulation.
type World interface {
	Lord(id string) (*Lord, bool)
	Player() PlayerParty
	// BattleOf returns the battle a party currently takes part in.
	BattleOf(partyID string) (*Battle, bool)
	Battle(id string) (*Battle, bool)
	Siege(id string) (*Siege, bool)
}

// Actions are the host operations the core may ask an adapter to perform.
type Actions interface {
	// JoinBattle places the player's party on a side of a battle. An error
	// means the host cannot perform the join (for example, no troops).
	JoinBattle(battleID string, side Side) error
}

// Clock reports campaign time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock uses wall-clock time.
var SystemClock Clock = ClockFunc(time.Now)
