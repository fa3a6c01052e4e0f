// Package apperr classifies handler failures into the kinds the dispatcher
// knows how to present to users.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the user-facing class of a failure.
type Kind int

const (
	// KindInternal is an unexpected fault. Any error without a kind is internal.
	KindInternal Kind = iota
	// KindUsage means the caller supplied bad arguments or context.
	KindUsage
	// KindPermission means the caller or the bot lacks rights.
	KindPermission
	// KindTransient is an upstream or network hiccup.
	KindTransient
	// KindConfiguration is a missing credential or setting.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindPermission:
		return "permission"
	case KindTransient:
		return "transient"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error is a classified failure. Msg is safe to show to users.
type Error struct {
	Kind Kind
	Msg  string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Usage returns a usage error with a formatted user message.
func Usage(format string, args ...interface{}) error {
	return &Error{Kind: KindUsage, Msg: fmt.Sprintf(format, args...)}
}

// Permission returns a permission error with a formatted user message.
func Permission(format string, args ...interface{}) error {
	return &Error{Kind: KindPermission, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps an upstream failure.
func Transient(err error, msg string) error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// Configuration reports a missing setting with a remediation hint.
func Configuration(msg, hint string) error {
	return &Error{Kind: KindConfiguration, Msg: msg, Hint: hint}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// UserMessage renders err for the invoking user.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "❌ An error occurred while running this command."
	}
	switch e.Kind {
	case KindTransient:
		return "❌ " + e.Msg + " Please try again later."
	case KindConfiguration:
		if e.Hint != "" {
			return "❌ " + e.Msg + "\n" + e.Hint
		}
		return "❌ " + e.Msg
	case KindInternal:
		return "❌ An error occurred while running this command."
	default:
		return "❌ " + e.Msg
	}
}

// ShortMessage renders err without a remediation hint.
func ShortMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindConfiguration {
		return "❌ " + e.Msg
	}
	return UserMessage(err)
}
