package enlistment

import (
	"errors"
	"fmt"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeAlreadyEnlisted  Code = "already_enlisted"
	CodeNotEnlisted      Code = "not_enlisted"
	CodeInvalidLord      Code = "invalid_lord"
	CodeInvalidReason    Code = "invalid_reason"
	CodeNotActive        Code = "not_active"
	CodeNotOnLeave       Code = "not_on_leave"
	CodeNotInGracePeriod Code = "not_in_grace_period"
	CodeInReserve        Code = "in_reserve"
	CodeNoActiveBattle   Code = "no_active_battle"
	CodeTierCapped       Code = "tier_capped"
	CodeCaptive          Code = "captive"
	CodeInvariant        Code = "invariant_violation"
)

// TransitionError is a rejected transition. The state is left untouched
// whenever one is returned.
type TransitionError struct {
	Op      string // engine operation, e.g. "enlist"
	Code    Code
	Message string
}

func (e *TransitionError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

// Is matches rejections by code so callers can use errors.Is with the
// sentinels below.
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Code == e.Code
}

var (
	ErrAlreadyEnlisted  = &TransitionError{Code: CodeAlreadyEnlisted, Message: "already enlisted"}
	ErrNotEnlisted      = &TransitionError{Code: CodeNotEnlisted, Message: "not enlisted"}
	ErrInvalidLord      = &TransitionError{Code: CodeInvalidLord, Message: "invalid lord"}
	ErrInvalidReason    = &TransitionError{Code: CodeInvalidReason, Message: "invalid discharge reason"}
	ErrNotActive        = &TransitionError{Code: CodeNotActive, Message: "not in active service"}
	ErrNotOnLeave       = &TransitionError{Code: CodeNotOnLeave, Message: "not on leave"}
	ErrNotInGracePeriod = &TransitionError{Code: CodeNotInGracePeriod, Message: "not in grace period"}
	ErrInReserve        = &TransitionError{Code: CodeInReserve, Message: "waiting in reserve"}
	ErrNoActiveBattle   = &TransitionError{Code: CodeNoActiveBattle, Message: "lord has no active battle"}
	ErrTierCapped       = &TransitionError{Code: CodeTierCapped, Message: "tier already at cap"}
	ErrCaptive          = &TransitionError{Code: CodeCaptive, Message: "player is a prisoner"}
	ErrInvariant        = &TransitionError{Code: CodeInvariant, Message: "transition would break an invariant"}
)

func reject(op string, code Code, format string, args ...any) *TransitionError {
	return &TransitionError{Op: op, Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the rejection code carried by err, or "" when err is not a
// rejection.
func CodeOf(err error) Code {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsRejection reports whether err is a rejected transition rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return CodeOf(err) != ""
}
