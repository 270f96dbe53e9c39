package host

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time copy of the world facts an adapter sends with
// each request. It implements World, Actions and Clock.
type Snapshot struct {
	Time    time.Time       `json:"time"`
	Party   PlayerParty     `json:"player"`
	Lords   map[string]Lord `json:"lords,omitempty"`
	Battles []Battle        `json:"battles,omitempty"`
	Sieges  []Siege         `json:"sieges,omitempty"`

	// Joins records battle joins requested through JoinBattle so the
	// adapter can apply them on the host side.
	Joins []Join `json:"joins,omitempty"`
}

// Join is a battle join requested of the host.
type Join struct {
	BattleID string `json:"battle_id"`
	Side     Side   `json:"side"`
}

var (
	_ World   = (*Snapshot)(nil)
	_ Actions = (*Snapshot)(nil)
	_ Clock   = (*Snapshot)(nil)
)

// NewSnapshot returns an empty snapshot stamped with the given time.
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		Time:  now,
		Lords: make(map[string]Lord),
	}
}

func (s *Snapshot) Lord(id string) (*Lord, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	l, ok := s.Lords[id]
	if !ok {
		return nil, false
	}
	return &l, true
}

func (s *Snapshot) Player() PlayerParty {
	if s == nil {
		return PlayerParty{}
	}
	return s.Party
}

// BattleOf returns the battle partyID fights in. An unfinished battle wins
// over one that already has a winner.
func (s *Snapshot) BattleOf(partyID string) (*Battle, bool) {
	if s == nil || partyID == "" {
		return nil, false
	}
	var finished *Battle
	for i := range s.Battles {
		if s.Battles[i].SideOf(partyID) == SideNone {
			continue
		}
		b := s.Battles[i]
		if !b.Finished() {
			return &b, true
		}
		if finished == nil {
			finished = &b
		}
	}
	return finished, finished != nil
}

func (s *Snapshot) Battle(id string) (*Battle, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	for i := range s.Battles {
		if s.Battles[i].ID == id {
			b := s.Battles[i]
			return &b, true
		}
	}
	return nil, false
}

func (s *Snapshot) Siege(id string) (*Siege, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	for i := range s.Sieges {
		if s.Sieges[i].ID == id {
			sg := s.Sieges[i]
			return &sg, true
		}
	}
	return nil, false
}

// Now returns the snapshot time. Campaign time never falls back to the wall
// clock, so an unset time reads as the zero time.
func (s *Snapshot) Now() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.Time
}

// JoinBattle validates the join against the snapshot and records it.
func (s *Snapshot) JoinBattle(battleID string, side Side) error {
	if s == nil {
		return fmt.Errorf("no world snapshot")
	}
	b, ok := s.Battle(battleID)
	if !ok {
		return fmt.Errorf("battle %q not found", battleID)
	}
	if b.Finished() {
		return fmt.Errorf("battle %q already finished", battleID)
	}
	if side == SideNone {
		return fmt.Errorf("no side given for battle %q", battleID)
	}
	if s.Party.TroopCount <= 0 {
		return fmt.Errorf("player party has no troops to join battle %q", battleID)
	}
	s.Joins = append(s.Joins, Join{BattleID: battleID, Side: side})
	return nil
}
