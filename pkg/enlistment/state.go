// Package enlistment holds the canonical record of the player's service under
// a lord and the engine that is the only thing allowed to change it.
package enlistment

import (
	"fmt"
	"strings"
	"time"
)

// Status is the player's service status. Values are mutually exclusive.
type Status string

const (
	StatusDischarged  Status = "discharged"
	StatusActive      Status = "active"
	StatusOnLeave     Status = "on_leave"
	StatusGracePeriod Status = "grace_period"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDischarged, StatusActive, StatusOnLeave, StatusGracePeriod:
		return true
	}
	return false
}

// DischargeReason explains why service ended.
type DischargeReason string

const (
	ReasonVoluntary              DischargeReason = "voluntary"
	ReasonDesertion              DischargeReason = "desertion"
	ReasonLordDefeatedOrCaptured DischargeReason = "lord_defeated_or_captured"
	ReasonStoryForced            DischargeReason = "story_forced"
)

// Valid reports whether r is a known discharge reason.
func (r DischargeReason) Valid() bool {
	switch r {
	case ReasonVoluntary, ReasonDesertion, ReasonLordDefeatedOrCaptured, ReasonStoryForced:
		return true
	}
	return false
}

// SuppressesRelationPenalty reports whether the host's "left the faction"
// relation penalty must be withheld for this reason. Leaving a service
// contract is not betraying a kingdom.
func (r DischargeReason) SuppressesRelationPenalty() bool {
	return r == ReasonVoluntary || r == ReasonDesertion
}

// LordRef identifies the lord the player serves.
type LordRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (l *LordRef) clone() *LordRef {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// State is the player's service record. One exists per campaign session.
type State struct {
	Status           Status   `json:"status"`
	Lord             *LordRef `json:"lord,omitempty"`
	Tier             int      `json:"tier"` // 0 until the first enlistment
	WaitingInReserve bool     `json:"waiting_in_reserve,omitempty"`
	Captive          bool     `json:"captive,omitempty"`

	GraceProtectionUntil time.Time `json:"grace_protection_until,omitzero"`

	EnlistedAt           time.Time       `json:"enlisted_at,omitzero"`
	LeaveStartedAt       time.Time       `json:"leave_started_at,omitzero"`
	GracePeriodStartedAt time.Time       `json:"grace_period_started_at,omitzero"`
	DischargedAt         time.Time       `json:"discharged_at,omitzero"`
	LastDischargeReason  DischargeReason `json:"last_discharge_reason,omitempty"`
	RetainedLord         *LordRef        `json:"retained_lord,omitempty"` // lord of the last service, for re-enlistment
}

// NewState returns a record for a player who has never enlisted.
func NewState() *State {
	return &State{Status: StatusDischarged}
}

// Clone returns a deep copy of the record.
func (s *State) Clone() State {
	c := *s
	c.Lord = s.Lord.clone()
	c.RetainedLord = s.RetainedLord.clone()
	return c
}

// IsServing reports whether the player is under contract in any form.
func (s *State) IsServing() bool {
	return s.Status != StatusDischarged
}

// HasActiveGraceProtection reports whether the post-separation shield is
// still open at now.
func (s *State) HasActiveGraceProtection(now time.Time) bool {
	return !s.GraceProtectionUntil.IsZero() && now.Before(s.GraceProtectionUntil)
}

// Validate checks the record's invariants.
func (s *State) Validate() error {
	var problems []string
	if !s.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", s.Status))
	}
	if s.Status == StatusDischarged && s.Lord != nil {
		problems = append(problems, "discharged record still names a lord")
	}
	if s.Status != StatusDischarged && (s.Lord == nil || s.Lord.ID == "") {
		problems = append(problems, fmt.Sprintf("%s record has no lord", s.Status))
	}
	if s.WaitingInReserve && s.Status != StatusActive {
		problems = append(problems, fmt.Sprintf("reserve flag set while %s", s.Status))
	}
	if s.Tier < 0 {
		problems = append(problems, fmt.Sprintf("negative tier %d", s.Tier))
	}
	if s.Status != StatusDischarged && s.Tier < 1 {
		problems = append(problems, "serving record has no tier")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid enlistment state: %s", strings.Join(problems, "; "))
}
