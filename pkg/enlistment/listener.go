package enlistment

import "time"

// StatusChange describes a status transition.
type StatusChange struct {
	Old    Status          `json:"old"`
	New    Status          `json:"new"`
	Lord   *LordRef        `json:"lord,omitempty"`
	Reason DischargeReason `json:"reason,omitempty"`
	At     time.Time       `json:"at"`
}

// Anomaly is a recoverable inconsistency that was corrected.
type Anomaly struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

const (
	AnomalyStaleReserve     = "stale_reserve"
	AnomalyOrphanLord       = "orphan_lord"
	AnomalyMissingLord      = "missing_lord"
	AnomalyTierOutOfRange   = "tier_out_of_range"
	AnomalyUnknownStatus    = "unknown_status"
	AnomalyExpiredGrace     = "expired_grace_protection"
	AnomalyStaleBattle      = "stale_battle"
	AnomalyCollaboratorGone = "collaborator_gone"
)

// Listener receives events raised by the engine.
type Listener interface {
	OnStatusChanged(StatusChange)
	OnAnomaly(Anomaly)
}

// Listeners fans events out to several listeners.
type Listeners []Listener

func (ls Listeners) OnStatusChanged(c StatusChange) {
	for _, l := range ls {
		if l != nil {
			l.OnStatusChanged(c)
		}
	}
}

func (ls Listeners) OnAnomaly(a Anomaly) {
	for _, l := range ls {
		if l != nil {
			l.OnAnomaly(a)
		}
	}
}

// Recorder keeps every event it receives. Useful in tests and for
// returning the events of a single request.
type Recorder struct {
	Changes   []StatusChange
	Anomalies []Anomaly
}

func (r *Recorder) OnStatusChanged(c StatusChange) { r.Changes = append(r.Changes, c) }
func (r *Recorder) OnAnomaly(a Anomaly) { r.Anomalies = append(r.Anomalies, a) }
