package msglib

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers branch on Kind (or errors.Is against the sentinels below) and may
// log RuleID; Error() strings are for humans and may change.
type Kind string

const (
	KindInvalidCapability Kind = "InvalidCapability"
	KindInvalidExpiry     Kind = "InvalidExpiry"
	KindAlreadyRegistered Kind = "AlreadyRegistered"
	KindUnauthorized      Kind = "Unauthorized"
	KindNotRegistered     Kind = "NotRegistered"
	KindInvalidArgument   Kind = "InvalidArgument"
	KindStorage           Kind = "Storage"
	KindInternal          Kind = "Internal"
)

// Error is the structured error returned by every control-plane operation.
//
// RuleID names the violated rule (e.g. LIBREG-CAP-101) and is stable across
// versions.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches sentinel errors by Kind. A target with a RuleID must match it too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.RuleID == "" || t.RuleID == e.RuleID
}

// Sentinels for errors.Is. They carry no RuleID and match any error of their Kind.
var (
	ErrInvalidCapability = &Error{Kind: KindInvalidCapability, Message: "invalid capability"}
	ErrInvalidExpiry     = &Error{Kind: KindInvalidExpiry, Message: "invalid expiry"}
	ErrAlreadyRegistered = &Error{Kind: KindAlreadyRegistered, Message: "already registered"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotRegistered     = &Error{Kind: KindNotRegistered, Message: "not registered"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// Errorf builds a structured error with a formatted message.
func Errorf(kind Kind, ruleID, format string, args ...any) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a structured error around cause.
func Wrap(kind Kind, ruleID, msg string, cause error) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// KindOf returns the Kind of err, or "" for unstructured errors.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
