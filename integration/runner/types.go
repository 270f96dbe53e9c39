package runner

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name   string     `json:"name"`
	Policy string     `json:"policy,omitempty"` // Used for regular tests
	Steps  []TestStep `json:"steps,omitempty"`  // Used for regular tests
	Cases  []string   `json:"cases,omitempty"`  // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single interaction and its expected outcomes.
// Exactly one of Command, Event, Encounter or Reset is set. Reset restores
// the save taken right after the session was created.
type TestStep struct {
	Name      string            `json:"name,omitempty"`
	Command   *session.Command  `json:"command,omitempty"`
	Event     *session.Event    `json:"event,omitempty"`
	Encounter *battle.Encounter `json:"encounter,omitempty"`
	Reset     bool              `json:"reset,omitempty"`
	World     *host.Snapshot    `json:"world,omitempty"`

	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Query properties - aligned with pkg/session/command.go
	Status             *enlistment.Status `json:"status,omitempty"`
	Lord               *string            `json:"lord,omitempty"` // lord ID, "" for none
	Tier               *int               `json:"tier,omitempty"`
	IsOnLeave          *bool              `json:"is_on_leave,omitempty"`
	IsInGracePeriod    *bool              `json:"is_in_grace_period,omitempty"`
	IsWaitingInReserve *bool              `json:"is_waiting_in_reserve,omitempty"`
	IsCaptive          *bool              `json:"is_captive,omitempty"`
	GraceProtection    *bool              `json:"has_active_grace_protection,omitempty"`
	ProjectedDailyWage *int               `json:"projected_daily_wage,omitempty"`
	BattlePhase        *battle.Phase      `json:"battle_phase,omitempty"`
	VisitingSettlement *string            `json:"visiting_settlement,omitempty"`

	// Step outcome
	Rejected *enlistment.Code `json:"rejected,omitempty"` // command must fail with this code
	Outcome  *battle.Outcome  `json:"outcome,omitempty"`  // encounter decision
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName  string
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	RequestID string // set for queued host events
	IsReset   bool   // True if this was a reset step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed by a worker
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	Session  uuid.UUID // ID of the session used for this test
}
