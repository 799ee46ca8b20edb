package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelMatchesByKind(t *testing.T) {
	err := New(KindInsufficientFunds, "debit", "balance 5 < 10")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected errors.Is to match ErrInsufficientFunds")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("did not expect NotFound to match")
	}

	wrapped := fmt.Errorf("submit withdrawal: %w", err)
	if KindOf(wrapped) != KindInsufficientFunds {
		t.Fatalf("expected kind through wrapping, got %s", KindOf(wrapped))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected INTERNAL, got %s", got)
	}
	if Wrap(KindNotFound, "op", nil) != nil {
		t.Fatalf("wrapping nil must return nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(KindMissingTxHash, "review withdrawal", "tx hash required")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error")
	}
	if e.Message() != "tx hash required" {
		t.Fatalf("unexpected message %q", e.Message())
	}
	if err.Error() != "[MISSING_TX_HASH] review withdrawal: tx hash required" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
