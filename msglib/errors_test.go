package msglib

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	err := Errorf(KindInvalidCapability, "LIBREG-CAP-101", "library %s cannot send", "x")
	if !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("expected ErrInvalidCapability match, got %v", err)
	}
	if errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("unexpected ErrInvalidExpiry match")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrInvalidCapability) {
		t.Fatalf("expected match through fmt wrapping")
	}
	if RuleID(wrapped) != "LIBREG-CAP-101" {
		t.Fatalf("RuleID = %q", RuleID(wrapped))
	}
	if KindOf(wrapped) != KindInvalidCapability {
		t.Fatalf("KindOf = %q", KindOf(wrapped))
	}
}

func TestErrorIsHonorsRuleIDOnTarget(t *testing.T) {
	err := Errorf(KindInvalidExpiry, "LIBREG-EXP-001", "expiry not in the future")
	if !errors.Is(err, &Error{Kind: KindInvalidExpiry, RuleID: "LIBREG-EXP-001"}) {
		t.Fatalf("expected rule-specific match")
	}
	if errors.Is(err, &Error{Kind: KindInvalidExpiry, RuleID: "LIBREG-EXP-002"}) {
		t.Fatalf("unexpected match on different rule")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStorage, "LIBREG-STO-001", "journal append failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if got := err.Error(); got != "journal append failed: disk full" {
		t.Fatalf("Error() = %q", got)
	}
	if IsKind(nil, KindStorage) {
		t.Fatalf("nil error must not have a kind")
	}
}
