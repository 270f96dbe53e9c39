package enlistment

import (
	"io"
	"log/slog"
	"time"

	"github.com/jwebster45206/enlisted/pkg/host"
)

// Engine applies validated transitions to a State. It is the only code that
// mutates the record; everything else reads it through the query methods.
//
// A rejected transition returns a *TransitionError and leaves the record as
// it was. Callers sit inside host call sites that cannot unwind, so they
// should log the rejection and carry on.
type Engine struct {
	state    *State
	policy   *Policy
	world    host.World
	clock    host.Clock
	listener Listener
	logger   *slog.Logger
}

// NewEngine wraps state. A nil state starts a never-enlisted record and a nil
// policy uses DefaultPolicy.
func NewEngine(state *State, policy *Policy, logger *slog.Logger) *Engine {
	if state == nil {
		state = NewState()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		state:  state,
		policy: policy,
		clock:  host.SystemClock,
		logger: logger,
	}
}

// WithWorld sets the world used for lord and battle lookups.
// Returns the Engine for method chaining
func (e *Engine) WithWorld(w host.World) *Engine {
	e.world = w
	return e
}

// WithClock sets the campaign clock.
// Returns the Engine for method chaining
func (e *Engine) WithClock(c host.Clock) *Engine {
	if c != nil {
		e.clock = c
	}
	return e
}

// WithListener sets the receiver of status changes and anomalies.
// Returns the Engine for method chaining
func (e *Engine) WithListener(l Listener) *Engine {
	e.listener = l
	return e
}

func (e *Engine) Policy() *Policy { return e.policy }
func (e *Engine) World() host.World { return e.world }
func (e *Engine) Now() time.Time { return e.clock.Now() }
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Queries

func (e *Engine) Status() Status { return e.state.Status }
func (e *Engine) IsActive() bool { return e.state.Status == StatusActive }
func (e *Engine) IsOnLeave() bool { return e.state.Status == StatusOnLeave }
func (e *Engine) IsInGracePeriod() bool { return e.state.Status == StatusGracePeriod }
func (e *Engine) IsWaitingInReserve() bool { return e.state.WaitingInReserve }
func (e *Engine) IsCaptive() bool { return e.state.Captive }
func (e *Engine) Tier() int { return e.state.Tier }

// CurrentLord returns a copy of the lord reference, or nil when discharged.
func (e *Engine) CurrentLord() *LordRef { return e.state.Lord.clone() }

// Snapshot returns a copy of the record.
func (e *Engine) Snapshot() State { return e.state.Clone() }

// HasActiveGraceProtection reports whether the post-separation shield is open.
func (e *Engine) HasActiveGraceProtection() bool {
	return e.state.HasActiveGraceProtection(e.Now())
}

// Lord returns the world's view of the current lord.
func (e *Engine) Lord() (*host.Lord, bool) {
	if e.state.Lord == nil || e.world == nil {
		return nil, false
	}
	return e.world.Lord(e.state.Lord.ID)
}

// LordPartyIDs returns the party of the current lord and, when the lord
// marches in someone else's army, the army leader's party.
func (e *Engine) LordPartyIDs() []string {
	lord, ok := e.Lord()
	if !ok || !lord.HasParty() {
		return nil
	}
	ids := []string{lord.PartyID}
	if lord.ArmyLeaderID != "" && lord.ArmyLeaderID != lord.ID {
		if leader, ok := e.world.Lord(lord.ArmyLeaderID); ok && leader.HasParty() {
			ids = append(ids, leader.PartyID)
		}
	}
	return ids
}

// LordBattle returns the active battle the lord's party or army is in.
func (e *Engine) LordBattle() (*host.Battle, host.Side, bool) {
	if e.world == nil {
		return nil, host.SideNone, false
	}
	for _, partyID := range e.LordPartyIDs() {
		b, ok := e.world.BattleOf(partyID)
		if !ok || b.Finished() {
			continue
		}
		return b, b.SideOf(partyID), true
	}
	return nil, host.SideNone, false
}

// IsEmbeddedWithLord reports whether the player is actually travelling with
// the lord right now. Status alone is not enough: an active record can be
// momentarily detached, for example right after an army disperses.
func (e *Engine) IsEmbeddedWithLord() bool {
	if e.state.Status != StatusActive || e.state.Captive || e.world == nil {
		return false
	}
	party := e.world.Player()
	if party.Prisoner {
		return false
	}
	lord, ok := e.Lord()
	if !ok || !lord.Alive || lord.Prisoner || !lord.HasParty() {
		return false
	}
	for _, id := range e.LordPartyIDs() {
		if party.AttachedTo == id || party.NearPartyID == id {
			return true
		}
	}
	return false
}

// ProjectedDailyWage is the wage owed for a day of active service at the
// current tier, scaled by the lord's treasury.
func (e *Engine) ProjectedDailyWage() int {
	if e.state.Status != StatusActive {
		return 0
	}
	gold := -1
	if lord, ok := e.Lord(); ok {
		gold = lord.Gold
	}
	return e.policy.Wage(e.state.Tier, gold)
}

// Commands

// DischargeOutcome reports the side effects of a discharge.
type DischargeOutcome struct {
	Reason                    DischargeReason `json:"reason"`
	FormerLord                *LordRef        `json:"former_lord,omitempty"`
	RetainedTier              int             `json:"retained_tier"`
	RelationPenaltySuppressed bool            `json:"relation_penalty_suppressed"`
	GraceProtectionUntil      time.Time       `json:"grace_protection_until"`
}

// Enlist starts service under lord. Re-enlisting with the lord of the last
// service inside the retention window resumes the old tier, unless that
// service ended in desertion; every other enlistment starts at tier 1.
func (e *Engine) Enlist(lord LordRef) error {
	return e.apply("enlist", func(next *State, now time.Time) error {
		if next.Status != StatusDischarged {
			return reject("enlist", CodeAlreadyEnlisted, "already %s under %s", next.Status, lordName(next.Lord))
		}
		if lord.ID == "" {
			return reject("enlist", CodeInvalidLord, "no lord given")
		}
		if next.Captive {
			return reject("enlist", CodeCaptive, "cannot enlist while a prisoner")
		}
		if e.world != nil {
			if l, ok := e.world.Lord(lord.ID); ok {
				if !l.Alive {
					return reject("enlist", CodeInvalidLord, "lord %s is dead", lord.ID)
				}
				if l.Prisoner {
					return reject("enlist", CodeInvalidLord, "lord %s is a prisoner", lord.ID)
				}
				if lord.Name == "" {
					lord.Name = l.Name
				}
			}
		}

		tier := 1
		if e.resumesTier(next, lord.ID, now) {
			tier = e.policy.ClampTier(next.Tier)
		}

		next.Status = StatusActive
		next.Lord = &lord
		next.Tier = tier
		next.WaitingInReserve = false
		next.GraceProtectionUntil = time.Time{}
		next.EnlistedAt = now
		next.LeaveStartedAt = time.Time{}
		next.GracePeriodStartedAt = time.Time{}
		next.RetainedLord = nil
		return nil
	})
}

func (e *Engine) resumesTier(s *State, lordID string, now time.Time) bool {
	if s.RetainedLord == nil || s.RetainedLord.ID != lordID || s.Tier < 1 {
		return false
	}
	if s.LastDischargeReason == ReasonDesertion {
		return false
	}
	return now.Sub(s.DischargedAt) <= time.Duration(e.policy.RetentionWindow)
}

// Discharge ends service for reason and opens the grace-protection window.
func (e *Engine) Discharge(reason DischargeReason) (DischargeOutcome, error) {
	var out DischargeOutcome
	err := e.apply("discharge", func(next *State, now time.Time) error {
		if !reason.Valid() {
			return reject("discharge", CodeInvalidReason, "unknown reason %q", reason)
		}
		if next.Status == StatusDischarged {
			return reject("discharge", CodeNotEnlisted, "already discharged")
		}
		out = DischargeOutcome{
			Reason:                    reason,
			FormerLord:                next.Lord.clone(),
			RetainedTier:              next.Tier,
			RelationPenaltySuppressed: reason.SuppressesRelationPenalty(),
			GraceProtectionUntil:      now.Add(time.Duration(e.policy.GraceProtection)),
		}
		next.RetainedLord = next.Lord
		next.Lord = nil
		next.Status = StatusDischarged
		next.WaitingInReserve = false
		next.GraceProtectionUntil = out.GraceProtectionUntil
		next.DischargedAt = now
		next.LastDischargeReason = reason
		next.LeaveStartedAt = time.Time{}
		next.GracePeriodStartedAt = time.Time{}
		return nil
	}, reason)
	if err != nil {
		return DischargeOutcome{}, err
	}
	return out, nil
}

// BeginLeave moves active service to leave. Lord and tier are kept.
func (e *Engine) BeginLeave() error {
	return e.apply("begin_leave", func(next *State, now time.Time) error {
		if next.Status != StatusActive {
			return reject("begin_leave", CodeNotActive, "cannot take leave while %s", next.Status)
		}
		if next.WaitingInReserve {
			return reject("begin_leave", CodeInReserve, "cannot take leave while waiting in reserve")
		}
		if next.Captive {
			return reject("begin_leave", CodeCaptive, "cannot take leave while a prisoner")
		}
		next.Status = StatusOnLeave
		next.LeaveStartedAt = now
		return nil
	})
}

// EndLeave returns from leave to active service.
func (e *Engine) EndLeave() error {
	return e.apply("end_leave", func(next *State, _ time.Time) error {
		if next.Status != StatusOnLeave {
			return reject("end_leave", CodeNotOnLeave, "not on leave (%s)", next.Status)
		}
		next.Status = StatusActive
		next.LeaveStartedAt = time.Time{}
		return nil
	})
}

// EnterReserve marks the player as waiting outside the formations of the
// lord's current battle. Entering twice is a no-op.
func (e *Engine) EnterReserve() error {
	return e.apply("enter_reserve", func(next *State, _ time.Time) error {
		if next.Status != StatusActive {
			return reject("enter_reserve", CodeNotActive, "cannot wait in reserve while %s", next.Status)
		}
		if next.Captive {
			return reject("enter_reserve", CodeCaptive, "cannot wait in reserve while a prisoner")
		}
		if next.WaitingInReserve {
			return nil
		}
		if _, _, ok := e.LordBattle(); !ok {
			return reject("enter_reserve", CodeNoActiveBattle, "%s is not in an active battle", lordName(next.Lord))
		}
		next.WaitingInReserve = true
		return nil
	})
}

// ExitReserve clears the reserve flag. It never fails and may be called any
// number of times; it reports whether anything changed. A flag found outside
// active service is reported as a stale anomaly.
func (e *Engine) ExitReserve() bool {
	if !e.state.WaitingInReserve {
		return false
	}
	if e.state.Status != StatusActive {
		e.anomaly(AnomalyStaleReserve, "reserve flag cleared while "+string(e.state.Status))
	}
	e.state.WaitingInReserve = false
	e.logger.Debug("Left reserve", "status", e.state.Status)
	return true
}

// AdvanceTier promotes the player one tier, up to the policy cap.
func (e *Engine) AdvanceTier() (int, error) {
	err := e.apply("advance_tier", func(next *State, _ time.Time) error {
		if next.Status == StatusDischarged {
			return reject("advance_tier", CodeNotEnlisted, "cannot promote a discharged soldier")
		}
		if next.Tier >= e.policy.MaxTier {
			return reject("advance_tier", CodeTierCapped, "tier %d is the cap", e.policy.MaxTier)
		}
		next.Tier++
		return nil
	})
	return e.state.Tier, err
}

// BeginGracePeriod suspends service while the lord is captured or missing.
// Lord and tier are kept so service can resume.
func (e *Engine) BeginGracePeriod() error {
	return e.apply("begin_grace_period", func(next *State, now time.Time) error {
		if next.Status != StatusActive && next.Status != StatusOnLeave {
			return reject("begin_grace_period", CodeNotActive, "cannot start a grace period while %s", next.Status)
		}
		next.Status = StatusGracePeriod
		next.WaitingInReserve = false
		next.LeaveStartedAt = time.Time{}
		next.GracePeriodStartedAt = now
		return nil
	})
}

// EndGracePeriod resumes active service once the lord is back.
func (e *Engine) EndGracePeriod() error {
	return e.apply("end_grace_period", func(next *State, _ time.Time) error {
		if next.Status != StatusGracePeriod {
			return reject("end_grace_period", CodeNotInGracePeriod, "not in a grace period (%s)", next.Status)
		}
		if l, ok := e.Lord(); ok && (!l.Alive || l.Prisoner) {
			return reject("end_grace_period", CodeInvalidLord, "%s cannot take the player back", lordName(next.Lord))
		}
		next.Status = StatusActive
		next.GracePeriodStartedAt = time.Time{}
		return nil
	})
}

// ExpireGracePeriod discharges the player when a grace period has outlasted
// the policy window. It reports whether a discharge happened.
func (e *Engine) ExpireGracePeriod() (bool, error) {
	if e.state.Status != StatusGracePeriod {
		return false, nil
	}
	if e.Now().Sub(e.state.GracePeriodStartedAt) < time.Duration(e.policy.GracePeriodDuration) {
		return false, nil
	}
	if _, err := e.Discharge(ReasonLordDefeatedOrCaptured); err != nil {
		return false, err
	}
	return true, nil
}

// EnterCaptivity overlays captivity on whatever status the player holds.
// The reserve flag cannot survive capture. Repeated calls are no-ops.
func (e *Engine) EnterCaptivity() {
	if e.state.Captive {
		return
	}
	e.state.Captive = true
	e.state.WaitingInReserve = false
	e.logger.Info("Player captured", "status", e.state.Status, "lord", lordName(e.state.Lord))
}

// ExitCaptivity lifts the captivity overlay. Repeated calls are no-ops.
func (e *Engine) ExitCaptivity() {
	if !e.state.Captive {
		return
	}
	e.state.Captive = false
	e.logger.Info("Player released", "status", e.state.Status)
}

// ClearExpiredProtection drops a grace-protection window that has run out.
func (e *Engine) ClearExpiredProtection() bool {
	if e.state.GraceProtectionUntil.IsZero() || e.state.HasActiveGraceProtection(e.Now()) {
		return false
	}
	e.state.GraceProtectionUntil = time.Time{}
	return true
}

// Reconcile repairs any sub-state that has outlived its context and returns
// what it fixed. It is safe to call at any time.
func (e *Engine) Reconcile() []Anomaly {
	var fixed []Anomaly
	note := func(kind, detail string) {
		fixed = append(fixed, e.anomaly(kind, detail))
	}
	s := e.state

	if !s.Status.Valid() {
		note(AnomalyUnknownStatus, "unknown status "+string(s.Status)+" reset to discharged")
		s.Status = StatusDischarged
	}
	if s.Status == StatusDischarged && s.Lord != nil {
		note(AnomalyOrphanLord, "discharged record named "+lordName(s.Lord))
		s.RetainedLord = s.Lord
		s.Lord = nil
	}
	if s.Status != StatusDischarged && (s.Lord == nil || s.Lord.ID == "") {
		note(AnomalyMissingLord, string(s.Status)+" record had no lord, discharged")
		s.Lord = nil
		s.Status = StatusDischarged
		s.DischargedAt = e.Now()
		s.LastDischargeReason = ReasonStoryForced
	}
	if s.WaitingInReserve && s.Status != StatusActive {
		note(AnomalyStaleReserve, "reserve flag set while "+string(s.Status))
		s.WaitingInReserve = false
	}
	if s.Tier > e.policy.MaxTier || s.Tier < 0 || (s.Status != StatusDischarged && s.Tier < 1) {
		note(AnomalyTierOutOfRange, "tier clamped into policy range")
		s.Tier = e.policy.ClampTier(s.Tier)
	}
	if e.ClearExpiredProtection() {
		e.logger.Debug("Grace protection expired")
	}
	return fixed
}

// apply runs fn against a copy of the record and commits the copy only if fn
// succeeds and the result is valid.
func (e *Engine) apply(op string, fn func(next *State, now time.Time) error, reason ...DischargeReason) error {
	now := e.Now()
	next := e.state.Clone()
	if err := fn(&next, now); err != nil {
		e.logger.Warn("Transition rejected", "op", op, "status", e.state.Status, "error", err)
		return err
	}
	if err := next.Validate(); err != nil {
		e.logger.Error("Transition would break invariants", "op", op, "error", err)
		return reject(op, CodeInvariant, "%v", err)
	}

	old := e.state.Status
	*e.state = next
	if old != next.Status {
		change := StatusChange{Old: old, New: next.Status, Lord: next.Lord.clone(), At: now}
		if change.Lord == nil {
			change.Lord = next.RetainedLord.clone()
		}
		if len(reason) > 0 {
			change.Reason = reason[0]
		}
		e.logger.Info("Enlistment status changed", "op", op, "from", old, "to", next.Status, "tier", next.Tier)
		if e.listener != nil {
			e.listener.OnStatusChanged(change)
		}
	}
	return nil
}

func (e *Engine) anomaly(kind, detail string) Anomaly {
	a := Anomaly{Kind: kind, Detail: detail, At: e.Now()}
	e.logger.Warn("Corrected enlistment anomaly", "kind", kind, "detail", detail)
	if e.listener != nil {
		e.listener.OnAnomaly(a)
	}
	return a
}

func lordName(l *LordRef) string {
	switch {
	case l == nil:
		return "no lord"
	case l.Name != "":
		return l.Name
	default:
		return l.ID
	}
}
