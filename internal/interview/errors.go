package interview

import (
	"errors"
	"fmt"
)

// Error families. Every error returned by the engine matches exactly one of
// them through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidState        = errors.New("invalid state")
	ErrAlreadyAnswered     = errors.New("already answered")
	ErrDuplicateSession    = errors.New("duplicate session")
	ErrConflict            = errors.New("concurrent modification")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidInput        = errors.New("invalid input")
	ErrCorrupt             = errors.New("corrupt session data")
)

var (
	ErrSessionNotFound  = fmt.Errorf("session %w", ErrNotFound)
	ErrResumeNotFound   = fmt.Errorf("resume %w", ErrNotFound)
	ErrUnknownQuestion  = fmt.Errorf("question %w", ErrNotFound)
	ErrGenerationFailed = fmt.Errorf("question generation failed: %w", ErrUpstreamUnavailable)
	ErrScoringFailed    = fmt.Errorf("answer scoring failed: %w", ErrUpstreamUnavailable)
)

// Code is the stable, client-facing name of an error family.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeForbidden           Code = "forbidden"
	CodeInvalidState        Code = "invalid_state"
	CodeAlreadyAnswered     Code = "already_answered"
	CodeDuplicateSession    Code = "duplicate_session"
	CodeConflict            Code = "conflict"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeUpstreamRejected    Code = "upstream_rejected"
	CodeUnauthenticated     Code = "unauthenticated"
	CodeInvalidInput        Code = "invalid_input"
	CodeCorrupt             Code = "corrupt"
	CodeInternal            Code = "internal"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrInvalidState, CodeInvalidState},
	{ErrAlreadyAnswered, CodeAlreadyAnswered},
	{ErrDuplicateSession, CodeDuplicateSession},
	{ErrConflict, CodeConflict},
	{ErrUpstreamUnavailable, CodeUpstreamUnavailable},
	{ErrUpstreamRejected, CodeUpstreamRejected},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrCorrupt, CodeCorrupt},
}

// CodeOf maps err to its family code. Unknown errors are CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Retryable reports whether repeating the same request may succeed.
func (c Code) Retryable() bool {
	return c == CodeUpstreamUnavailable || c == CodeConflict
}
