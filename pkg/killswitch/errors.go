package killswitch

import "errors"

// Validation failure codes, named per spec §4.4's validation order. Any
// failure rejects the command and emits a validation-failed event.
var (
	ErrBadSchema      = errors.New("BAD_SCHEMA")
	ErrClockSkew      = errors.New("CLOCK_SKEW")
	ErrBadSignature   = errors.New("BAD_SIGNATURE")
	ErrReplay         = errors.New("REPLAY")
	ErrTargetMismatch = errors.New("TARGET_MISMATCH")
	ErrKeyNotFound    = errors.New("KEY_NOT_FOUND")
)

// ValidationError pairs a sentinel code with a human message.
type ValidationError struct {
	Code error
	Msg  string
}

func (e *ValidationError) Error() string { return e.Code.Error() + ": " + e.Msg }
func (e *ValidationError) Unwrap() error { return e.Code }
