package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Store errors
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidPath      = errors.New("invalid document path")
	ErrInvalidField     = errors.New("invalid field path")

	// Stats errors
	ErrDuplicateCompletion = errors.New("completion already recorded for this walk")

	// Badge errors
	ErrInvalidCatalog = errors.New("invalid badge catalog")

	// Invite errors
	ErrUnauthenticated   = errors.New("you must be logged in")
	ErrMissingWalkID     = errors.New("walkId is required")
	ErrMissingShareCode  = errors.New("shareCode is required")
	ErrWalkNotFound      = errors.New("walk not found")
	ErrWalkNotPrivate    = errors.New("this walk is not private")
	ErrInvalidInviteCode = errors.New("invalid invite code")

	// Push errors
	ErrPushFailed = errors.New("push delivery failed for every token")
)

// ─── Error Kinds ────────────────────────────────────────────────────────────

// ErrorKind classifies a failure so the host integration can decide whether
// to log, retry, or surface it.
type ErrorKind string

const (
	KindUnknown            ErrorKind = "unknown"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNotFound           ErrorKind = "not_found"
	KindPersistence        ErrorKind = "persistence"
	KindDispatch           ErrorKind = "dispatch"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindFailedPrecondition ErrorKind = "failed_precondition"
	KindDuplicate          ErrorKind = "duplicate"
)

// OpError is returned by every application component. Op names the failing
// operation ("stats.apply", "badges.evaluate", ...).
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// E builds an OpError.
func E(op string, kind ErrorKind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost OpError in err's chain.
// Well-known sentinels are classified even when not wrapped in an OpError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrWalkNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrMissingWalkID), errors.Is(err, ErrMissingShareCode):
		return KindInvalidInput
	case errors.Is(err, ErrDuplicateCompletion):
		return KindDuplicate
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrWalkNotPrivate):
		return KindFailedPrecondition
	case errors.Is(err, ErrInvalidInviteCode):
		return KindPermissionDenied
	case errors.Is(err, ErrPushFailed):
		return KindDispatch
	}
	return KindUnknown
}

// Retryable reports whether redelivering the triggering event could help.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPersistence, KindDispatch, KindUnknown:
		return err != nil
	}
	return false
}
