package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/enlisted/internal/handlers"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running enlisted API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	PolicyOverride    string // If set, overrides the policy for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 30 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite on a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	policy := suite.Policy
	if r.PolicyOverride != "" {
		policy = r.PolicyOverride
	}

	rec, err := r.createSession(ctx, policy)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.Session = rec.ID

	// Reset steps restore this
	seed, err := r.save(ctx, rec.ID)
	if err != nil {
		result.Error = fmt.Errorf("failed to save seed state: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, rec.ID, step, seed)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep executes a single test step and checks expectations
// Will retry once on timeout errors without backoff
func (r *Runner) runStep(ctx context.Context, sessionID uuid.UUID, step TestStep, seed []byte) TestResult {
	for attempt := 1; attempt <= 2; attempt++ {
		result := r.executeStep(ctx, sessionID, step, seed)
		if result.Success || result.Error == nil {
			return result
		}

		isTimeout := strings.Contains(result.Error.Error(), "timeout waiting for host event")
		if isTimeout && attempt == 1 {
			r.Logger("    Timeout detected, retrying step: %s", step.Name)
			continue
		}
		return result
	}

	return TestResult{StepName: step.Name, Error: fmt.Errorf("unexpected error in retry logic")}
}

// executeStep performs the actual step execution
func (r *Runner) executeStep(ctx context.Context, sessionID uuid.UUID, step TestStep, seed []byte) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}
	fail := func(format string, args ...any) TestResult {
		result.Error = fmt.Errorf(format, args...)
		result.Duration = time.Since(start)
		return result
	}

	var (
		rejected *enlistment.Code
		outcome  *battle.Outcome
	)

	switch {
	case step.Reset:
		status, body, err := r.send(ctx, http.MethodPost, sessionPath(sessionID, "restore"), json.RawMessage(seed))
		if err != nil {
			return fail("failed to reset session: %w", err)
		}
		if status != http.StatusOK {
			return fail("restore returned %d: %s", status, string(body))
		}
		result.IsReset = true

	case step.Command != nil:
		status, body, err := r.send(ctx, http.MethodPost, sessionPath(sessionID, "commands"),
			handlers.CommandRequest{Command: *step.Command, World: step.World})
		if err != nil {
			return fail("failed to send command: %w", err)
		}
		switch status {
		case http.StatusOK:
		case http.StatusConflict:
			var errResp handlers.ErrorResponse
			if err := json.Unmarshal(body, &errResp); err != nil {
				return fail("failed to parse rejection: %w", err)
			}
			rejected = &errResp.Code
		default:
			return fail("commands endpoint returned %d: %s", status, string(body))
		}

	case step.Event != nil:
		before, err := GetRecord(ctx, r.Client, r.BaseURL, sessionID)
		if err != nil {
			return fail("failed to get session before event: %w", err)
		}
		requestID, applied, err := PostEvent(ctx, r.Client, r.BaseURL, sessionID, *step.Event, step.World)
		if err != nil {
			return fail("failed to post event: %w", err)
		}
		result.RequestID = requestID
		if !applied {
			if _, err := PollForEventProcessed(ctx, r.Client, r.BaseURL, sessionID, before.UpdatedAt); err != nil {
				return fail("failed to poll for event: %w", err)
			}
		}

	case step.Encounter != nil:
		status, body, err := r.send(ctx, http.MethodPost, sessionPath(sessionID, "encounters"),
			handlers.EncounterRequest{Encounter: *step.Encounter, World: step.World})
		if err != nil {
			return fail("failed to send encounter: %w", err)
		}
		if status != http.StatusOK {
			return fail("encounters endpoint returned %d: %s", status, string(body))
		}
		var resp handlers.EncounterResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fail("failed to parse encounter response: %w", err)
		}
		outcome = &resp.Decision.Outcome

	default:
		return fail("step has no command, event, encounter or reset")
	}

	q, err := r.query(ctx, sessionID, step)
	if err != nil {
		return fail("failed to query session: %w", err)
	}

	if err := checkExpectations(step.Expectations, q, rejected, outcome); err != nil {
		return fail("expectation failed: %w", err)
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func sessionPath(id uuid.UUID, action string) string {
	return "/v1/sessions/" + id.String() + "/" + action
}

// send posts body as JSON and returns the status and raw response.
func (r *Runner) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (r *Runner) createSession(ctx context.Context, policy string) (*session.Record, error) {
	status, body, err := r.send(ctx, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{Policy: policy})
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create session returned %d: %s", status, string(body))
	}
	var rec session.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode created session: %w", err)
	}
	return &rec, nil
}

func (r *Runner) save(ctx context.Context, id uuid.UUID) ([]byte, error) {
	status, body, err := r.send(ctx, http.MethodGet, sessionPath(id, "save"), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("save returned %d: %s", status, string(body))
	}
	return body, nil
}

func (r *Runner) query(ctx context.Context, id uuid.UUID, step TestStep) (*session.Query, error) {
	status, body, err := r.send(ctx, http.MethodPost, sessionPath(id, "queries"), handlers.WorldRequest{World: step.World})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("queries endpoint returned %d: %s", status, string(body))
	}
	var q session.Query
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	return &q, nil
}

// checkExpectations validates the expectations against the query answered
// after the step ran
func checkExpectations(exp Expectations, q *session.Query, rejected *enlistment.Code, outcome *battle.Outcome) error {
	if exp.Rejected != nil {
		if rejected == nil {
			return fmt.Errorf("expected rejection %s, but the command was applied", *exp.Rejected)
		}
		if *rejected != *exp.Rejected {
			return fmt.Errorf("expected rejection %s, got %s", *exp.Rejected, *rejected)
		}
	} else if rejected != nil {
		return fmt.Errorf("command was rejected: %s", *rejected)
	}

	if exp.Outcome != nil {
		if outcome == nil {
			return fmt.Errorf("expected outcome %s, but the step made no encounter decision", *exp.Outcome)
		}
		if *outcome != *exp.Outcome {
			return fmt.Errorf("expected outcome %s, got %s", *exp.Outcome, *outcome)
		}
	}

	if exp.Status != nil && q.Status != *exp.Status {
		return fmt.Errorf("expected status %s, got %s", *exp.Status, q.Status)
	}

	if exp.Lord != nil {
		got := ""
		if q.Lord != nil {
			got = q.Lord.ID
		}
		if got != *exp.Lord {
			return fmt.Errorf("expected lord %q, got %q", *exp.Lord, got)
		}
	}

	if exp.Tier != nil && q.Tier != *exp.Tier {
		return fmt.Errorf("expected tier %d, got %d", *exp.Tier, q.Tier)
	}

	flags := []struct {
		name string
		want *bool
		got  bool
	}{
		{"is_on_leave", exp.IsOnLeave, q.IsOnLeave},
		{"is_in_grace_period", exp.IsInGracePeriod, q.IsInGracePeriod},
		{"is_waiting_in_reserve", exp.IsWaitingInReserve, q.IsWaitingInReserve},
		{"is_captive", exp.IsCaptive, q.IsCaptive},
		{"has_active_grace_protection", exp.GraceProtection, q.HasActiveGraceProtection},
	}
	for _, f := range flags {
		if f.want != nil && *f.want != f.got {
			return fmt.Errorf("expected %s to be %t, got %t", f.name, *f.want, f.got)
		}
	}

	if exp.ProjectedDailyWage != nil && q.ProjectedDailyWage != *exp.ProjectedDailyWage {
		return fmt.Errorf("expected projected_daily_wage %d, got %d", *exp.ProjectedDailyWage, q.ProjectedDailyWage)
	}

	if exp.BattlePhase != nil && q.BattlePhase != *exp.BattlePhase {
		return fmt.Errorf("expected battle_phase %s, got %s", *exp.BattlePhase, q.BattlePhase)
	}

	if exp.VisitingSettlement != nil && q.VisitingSettlement != *exp.VisitingSettlement {
		return fmt.Errorf("expected visiting_settlement %q, got %q", *exp.VisitingSettlement, q.VisitingSettlement)
	}

	return nil
}
