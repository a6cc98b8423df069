package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindUpstreamThrottled, "upstream.search", errors.New("status 429"))
	wrapped := fmt.Errorf("fetch topic: %w", err)

	if !errors.Is(wrapped, ErrUpstreamThrottled) {
		t.Error("Expected wrapped error to match ErrUpstreamThrottled")
	}
	if errors.Is(wrapped, ErrUpstreamUnavailable) {
		t.Error("Expected kinds to be distinct")
	}
	if KindOf(wrapped) != KindUpstreamThrottled {
		t.Errorf("Expected kind %v, got %v", KindUpstreamThrottled, KindOf(wrapped))
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewError(KindUpstreamUnavailable, "upstream.search", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected cause to be reachable through Unwrap")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("Expected KindUnknown for unclassified errors")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("Expected KindUnknown for nil")
	}
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindNotFound, "topic.resolve", "topic %q", "x")
	if err.Error() != `topic.resolve: not found: topic "x"` {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if ErrRateBudgetExhausted.Error() != "rate budget exhausted" {
		t.Errorf("Unexpected sentinel message %q", ErrRateBudgetExhausted.Error())
	}
}

func TestOutcome(t *testing.T) {
	ok := Ok(3)
	if ok.IsFallback() || ok.Reason != nil {
		t.Error("Expected Ok outcome without reason")
	}

	fb := Fallback(4, ErrOptimizerUnavailable)
	if !fb.IsFallback() || fb.Value != 4 {
		t.Errorf("Expected fallback carrying value 4, got %+v", fb)
	}
	if !errors.Is(fb.Reason, ErrOptimizerUnavailable) {
		t.Error("Expected fallback reason to be preserved")
	}
}
