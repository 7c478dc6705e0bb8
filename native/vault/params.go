package vault

import (
	"fmt"
	"math"
)

// ModuleName identifies the vault module for pause controls and telemetry.
const ModuleName = "vault"

// MaxWindowSeconds caps both reclaim windows at ten years.
const MaxWindowSeconds int64 = 10 * 365 * 24 * 60 * 60

// Params are deployment-level settings shared by every vault. Neither window
// has a built-in default; operators must supply both.
type Params struct {
	// EscrowPeriodSeconds is the minimum time between initiation and
	// finalization.
	EscrowPeriodSeconds int64
	// ReclaimExpirySeconds is the time after initiation from which anyone may
	// expire an unfinalized reclaim.
	ReclaimExpirySeconds int64
}

// Validate checks that the windows are usable: finalization must be reachable
// before expiry opens.
func (p Params) Validate() error {
	if p.EscrowPeriodSeconds < 0 {
		return fmt.Errorf("vault params: escrow period must be non-negative")
	}
	if p.ReclaimExpirySeconds <= 0 {
		return fmt.Errorf("vault params: reclaim expiry must be positive")
	}
	if p.ReclaimExpirySeconds > MaxWindowSeconds {
		return fmt.Errorf("vault params: reclaim expiry (%ds) exceeds maximum of %ds", p.ReclaimExpirySeconds, MaxWindowSeconds)
	}
	if p.ReclaimExpirySeconds <= p.EscrowPeriodSeconds {
		return fmt.Errorf("vault params: reclaim expiry (%ds) must exceed escrow period (%ds)", p.ReclaimExpirySeconds, p.EscrowPeriodSeconds)
	}
	return nil
}

// EscrowEndsAt returns the earliest finalization time for a reclaim initiated
// at initiatedAt.
func (p Params) EscrowEndsAt(initiatedAt int64) int64 {
	return deadline(initiatedAt, p.EscrowPeriodSeconds)
}

// ExpiresAt returns the time from which the reclaim may be expired.
func (p Params) ExpiresAt(initiatedAt int64) int64 {
	return deadline(initiatedAt, p.ReclaimExpirySeconds)
}

// deadline saturates at math.MaxInt64 so a window never wraps into the past.
func deadline(start, window int64) int64 {
	if window > 0 && start > math.MaxInt64-window {
		return math.MaxInt64
	}
	return start + window
}
