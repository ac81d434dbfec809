package types

import (
	"fmt"
	"testing"
)

func TestKindOfDirect(t *testing.T) {
	err := New(KindInsufficientLiq, "not enough capital")
	kind, ok := KindOf(err)
	if !ok || kind != KindInsufficientLiq {
		t.Fatalf("KindOf() = (%v, %v), want (%v, true)", kind, ok, KindInsufficientLiq)
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(KindStalePrice, "price too old")
	wrapped := fmt.Errorf("quote: spot lookup: %w", inner)
	kind, ok := KindOf(wrapped)
	if !ok || kind != KindStalePrice {
		t.Fatalf("KindOf(wrapped) = (%v, %v), want (%v, true)", kind, ok, KindStalePrice)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if _, ok := KindOf(fmt.Errorf("boom")); ok {
		t.Fatal("expected KindOf to report false for an untagged error")
	}
}

func TestIsFatalConfig(t *testing.T) {
	if !IsFatalConfig(New(KindConfig, "missing signer key")) {
		t.Fatal("expected ConfigError to be fatal")
	}
	if IsFatalConfig(New(KindValidation, "bad input")) {
		t.Fatal("expected ValidationError to not be fatal")
	}
}
