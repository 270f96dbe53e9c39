// Package session scopes one campaign's enlistment: the persisted record and
// the components built over it for a single request.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/menu"
)

// Record is everything persisted for a campaign session.
type Record struct {
	ID         uuid.UUID        `json:"id"`
	PolicyName string           `json:"policy,omitempty"` // balance policy file, empty for defaults
	State      enlistment.State `json:"state"`
	Battle     battle.Tracker   `json:"battle"`
	Visit      menu.Visit       `json:"visit"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	// CampaignTime is the latest host time seen with a world snapshot. It
	// stands in for the clock when a request carries no world.
	CampaignTime time.Time `json:"campaign_time,omitzero"`
}

// NewRecord returns a discharged record with a fresh ID.
func NewRecord(policyName string) *Record {
	now := time.Now()
	return &Record{
		ID:         uuid.New(),
		PolicyName: policyName,
		State:      *enlistment.NewState(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
