package vault

import "fmt"

// PoolSnapshot carries the market-health readings for the fraction pool. The
// percentages are relative to the baseline recorded at fractionalization.
type PoolSnapshot struct {
	PoolAgeSeconds   int64
	LiquidityPercent uint64
	VolumePercent30d uint64
}

// Reason enumerates reclaim eligibility failures.
type Reason string

const (
	ReasonPoolTooYoung         Reason = "pool_too_young"
	ReasonLiquidityTooLow      Reason = "liquidity_too_low"
	ReasonVolumeTooLow         Reason = "volume_too_low"
	ReasonInsufficientHolding  Reason = "insufficient_holding"
	ReasonClockBeforeCreation  Reason = "clock_before_creation"
	ReasonTWAPPriceUnavailable Reason = "twap_price_unavailable"
)

// Ineligibility describes the first failed reclaim check together with the
// threshold and the observed value.
type Ineligibility struct {
	Reason   Reason
	Required uint64
	Actual   uint64
}

func (in *Ineligibility) Error() string {
	if in == nil {
		return ""
	}
	return fmt.Sprintf("reclaim not eligible: %s (required %d, actual %d)", in.Reason, in.Required, in.Actual)
}

// Unwrap maps the reason onto the error taxonomy so callers can use errors.Is.
func (in *Ineligibility) Unwrap() error {
	if in != nil && in.Reason == ReasonInsufficientHolding {
		return ErrInsufficientHolding
	}
	return ErrNotEligible
}

// Evaluate decides whether a reclaim may be initiated against v with the
// presented fraction holding. It returns nil when every check passes. Boundaries
// are inclusive and the holding check never rounds in the caller's favour.
func Evaluate(v *Vault, pool PoolSnapshot, holding uint64, now int64) *Ineligibility {
	if now < v.CreatedAt {
		return &Ineligibility{Reason: ReasonClockBeforeCreation, Required: nonNegative(v.CreatedAt), Actual: nonNegative(now)}
	}
	if pool.PoolAgeSeconds < v.MinLPAgeSeconds {
		return &Ineligibility{Reason: ReasonPoolTooYoung, Required: nonNegative(v.MinLPAgeSeconds), Actual: nonNegative(pool.PoolAgeSeconds)}
	}
	if pool.LiquidityPercent < uint64(v.MinLiquidityPercent) {
		return &Ineligibility{Reason: ReasonLiquidityTooLow, Required: uint64(v.MinLiquidityPercent), Actual: pool.LiquidityPercent}
	}
	if pool.VolumePercent30d < uint64(v.MinVolumePercent30d) {
		return &Ineligibility{Reason: ReasonVolumeTooLow, Required: uint64(v.MinVolumePercent30d), Actual: pool.VolumePercent30d}
	}
	if !meetsPercentage(holding, v.TotalSupply, v.MinReclaimPercentage) {
		return &Ineligibility{Reason: ReasonInsufficientHolding, Required: RequiredHolding(v.TotalSupply, v.MinReclaimPercentage), Actual: holding}
	}
	return nil
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
