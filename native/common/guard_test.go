package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	ps := NewPauseSet("Vault")
	if err := Guard(ps, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(ps, "other"); err != nil {
		t.Fatalf("unrelated module blocked: %v", err)
	}
	ps.Set(" vault ", false)
	if err := Guard(ps, "vault"); err != nil {
		t.Fatalf("resumed module still blocked: %v", err)
	}
}
