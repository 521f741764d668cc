package a2a

import "errors"

// Rich validation error codes, named per spec §4.5.
var (
	ErrInvalidFormat      = errors.New("INVALID_FORMAT")
	ErrInvalidSignature   = errors.New("INVALID_SIGNATURE")
	ErrExpired            = errors.New("EXPIRED")
	ErrNotYetValid        = errors.New("NOT_YET_VALID")
	ErrInvalidIssuer      = errors.New("INVALID_ISSUER")
	ErrInvalidAudience    = errors.New("INVALID_AUDIENCE")
	ErrMissingClaims      = errors.New("MISSING_CLAIMS")
	ErrInvalidClaims      = errors.New("INVALID_CLAIMS")
	ErrKeyNotFound        = errors.New("KEY_NOT_FOUND")
	ErrPausedAgent        = errors.New("PAUSED_AGENT")
	ErrTerminationPending = errors.New("TERMINATION_PENDING")
	ErrPolicyViolation    = errors.New("POLICY_VIOLATION")
)

// ValidationError pairs a sentinel code with a human message.
type ValidationError struct {
	Code error
	Msg  string
}

func (e *ValidationError) Error() string { return e.Code.Error() + ": " + e.Msg }
func (e *ValidationError) Unwrap() error { return e.Code }
