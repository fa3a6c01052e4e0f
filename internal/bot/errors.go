package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/keepmind9/guildbot/internal/apperr"
)

// ErrorKind classifies an outbound failure.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrPermission
	ErrNotFound
	ErrRateLimited
	ErrTransient
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermission:
		return "permission"
	case ErrNotFound:
		return "not_found"
	case ErrRateLimited:
		return "rate_limited"
	case ErrTransient:
		return "transient"
	case ErrUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// APIError is returned by every Gateway method.
type APIError struct {
	Kind ErrorKind
	Op   string
	// RetryAfter is set for rate-limited errors when the platform says.
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s)", e.Op, e.Kind)
}

func (e *APIError) Unwrap() error { return e.Err }

// KindOf returns the kind of an outbound error.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrUnknown
}

// Retryable reports whether a later attempt may succeed.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == ErrRateLimited || k == ErrTransient
}

// Permanent reports whether the target can never be reached.
func Permanent(err error) bool {
	k := KindOf(err)
	return k == ErrPermission || k == ErrNotFound || k == ErrUnsupported
}

// AsUserError converts an outbound failure into a user-facing error for the
// given action, e.g. "kick this member".
func AsUserError(err error, action string) error {
	switch KindOf(err) {
	case ErrPermission:
		return apperr.Permission("I don't have permission to %s.", action)
	case ErrNotFound:
		return apperr.Usage("I couldn't find that to %s.", action)
	case ErrRateLimited, ErrTransient:
		return apperr.Transient(err, fmt.Sprintf("The platform did not respond while trying to %s.", action))
	case ErrUnsupported:
		return apperr.Usage("This platform can't %s.", action)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func unsupported(op string) error {
	return &APIError{Kind: ErrUnsupported, Op: op}
}
