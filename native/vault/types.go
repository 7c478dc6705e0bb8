package vault

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status represents the lifecycle state of a vault. The numeric values are part
// of the persisted layout and must not be reordered.
type Status uint8

const (
	StatusActive           Status = iota // Fractionalized and tradeable
	StatusReclaimInitiated               // Fractions locked, escrow period running
	StatusReclaimFinalized               // Asset released, compensation claimable
	StatusClosed                         // Terminal, retained for audit
)

const (
	DefaultMinReclaimPercentage uint8 = 80
	DefaultMinLiquidityPercent  uint8 = 5
	DefaultMinVolumePercent30d  uint8 = 10
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReclaimInitiated, StatusReclaimFinalized, StatusClosed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusReclaimInitiated:
		return "ReclaimInitiated"
	case StatusReclaimFinalized:
		return "ReclaimFinalized"
	case StatusClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Thresholds are fixed at fractionalization and gate reclaim initiation.
type Thresholds struct {
	MinLPAgeSeconds      int64
	MinReclaimPercentage uint8
	MinLiquidityPercent  uint8
	MinVolumePercent30d  uint8
}

// WithDefaults fills zero percentages with the protocol defaults.
func (t Thresholds) WithDefaults() Thresholds {
	if t.MinReclaimPercentage == 0 {
		t.MinReclaimPercentage = DefaultMinReclaimPercentage
	}
	if t.MinLiquidityPercent == 0 {
		t.MinLiquidityPercent = DefaultMinLiquidityPercent
	}
	if t.MinVolumePercent30d == 0 {
		t.MinVolumePercent30d = DefaultMinVolumePercent30d
	}
	return t
}

// Validate checks the ranges of the configured thresholds.
func (t Thresholds) Validate() error {
	if t.MinLPAgeSeconds < 0 {
		return fmt.Errorf("vault: min lp age must be non-negative")
	}
	if t.MinReclaimPercentage == 0 || t.MinReclaimPercentage > 100 {
		return fmt.Errorf("vault: min reclaim percentage out of range: %d", t.MinReclaimPercentage)
	}
	if t.MinLiquidityPercent > 100 {
		return fmt.Errorf("vault: min liquidity percent out of range: %d", t.MinLiquidityPercent)
	}
	if t.MinVolumePercent30d > 100 {
		return fmt.Errorf("vault: min volume percent out of range: %d", t.MinVolumePercent30d)
	}
	return nil
}

// Vault pairs one custodied asset with its fraction mint and lifecycle state.
// Every field is fixed size so the record maps onto a flat account layout; see
// MarshalBinary. The pool address is deliberately absent.
type Vault struct {
	AssetID       [32]byte
	AssetLedgerID [32]byte
	FractionMint  [32]byte
	TotalSupply   uint64
	Creator       [32]byte
	CreatedAt     int64
	Status        Status
	ReclaimedAt   int64

	TWAPPriceAtReclaim    uint64
	TotalCompensation     uint64
	RemainingCompensation uint64

	MinLPAgeSeconds      int64
	MinReclaimPercentage uint8
	MinLiquidityPercent  uint8
	MinVolumePercent30d  uint8

	ReclaimInitiator   [32]byte
	ReclaimInitiatedAt int64
	TokensInEscrow     uint64
}

// ID returns the deterministic vault identifier derived from the asset.
func (v *Vault) ID() [32]byte {
	return DeriveID(v.AssetID)
}

// Thresholds returns the vault's reclaim thresholds.
func (v *Vault) Thresholds() Thresholds {
	return Thresholds{
		MinLPAgeSeconds:      v.MinLPAgeSeconds,
		MinReclaimPercentage: v.MinReclaimPercentage,
		MinLiquidityPercent:  v.MinLiquidityPercent,
		MinVolumePercent30d:  v.MinVolumePercent30d,
	}
}

// MinorityTokens is the supply outside the reclaim escrow.
func (v *Vault) MinorityTokens() uint64 {
	if v.TokensInEscrow > v.TotalSupply {
		return 0
	}
	return v.TotalSupply - v.TokensInEscrow
}

// Clone returns a copy of the vault. All fields are values so a shallow copy is
// sufficient.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func (v *Vault) clearEscrow() {
	v.ReclaimInitiator = [32]byte{}
	v.ReclaimInitiatedAt = 0
	v.TokensInEscrow = 0
	v.TWAPPriceAtReclaim = 0
	v.TotalCompensation = 0
	v.RemainingCompensation = 0
}

// Validate reports whether the record satisfies the lifecycle invariants. It is
// applied on every load and store.
func (v *Vault) Validate() error {
	if v == nil {
		return fmt.Errorf("vault: nil record")
	}
	if !v.Status.Valid() {
		return fmt.Errorf("vault: invalid status %d", v.Status)
	}
	if v.TotalSupply == 0 {
		return fmt.Errorf("vault: total supply must be positive")
	}
	if err := v.Thresholds().Validate(); err != nil {
		return err
	}
	if v.TokensInEscrow > v.TotalSupply {
		return fmt.Errorf("vault: tokens in escrow %d exceed supply %d", v.TokensInEscrow, v.TotalSupply)
	}
	if v.RemainingCompensation > v.TotalCompensation {
		return fmt.Errorf("vault: remaining compensation %d exceeds total %d", v.RemainingCompensation, v.TotalCompensation)
	}
	switch v.Status {
	case StatusActive:
		if v.ReclaimInitiatedAt != 0 || v.ReclaimedAt != 0 || v.TokensInEscrow != 0 ||
			v.TotalCompensation != 0 || v.TWAPPriceAtReclaim != 0 || v.ReclaimInitiator != ([32]byte{}) {
			return fmt.Errorf("vault: active vault carries reclaim state")
		}
	case StatusReclaimInitiated:
		if v.ReclaimInitiatedAt == 0 || v.ReclaimInitiatedAt < v.CreatedAt {
			return fmt.Errorf("vault: reclaim initiation timestamp invalid")
		}
		if v.ReclaimedAt != 0 {
			return fmt.Errorf("vault: reclaim timestamp set before finalization")
		}
		if v.RemainingCompensation != v.TotalCompensation {
			return fmt.Errorf("vault: compensation disbursed before finalization")
		}
	case StatusReclaimFinalized, StatusClosed:
		if v.ReclaimInitiatedAt == 0 || v.ReclaimedAt < v.ReclaimInitiatedAt {
			return fmt.Errorf("vault: reclaim timestamps invalid")
		}
		if v.Status == StatusClosed && v.RemainingCompensation != 0 {
			return fmt.Errorf("vault: closed vault holds compensation")
		}
	}
	return nil
}

var (
	vaultSeed    = []byte("vault")
	fractionSeed = []byte("fraction")
)

// DeriveID computes the vault identifier for an asset.
func DeriveID(asset [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(vaultSeed, asset[:])
}

// DeriveFractionMint computes the fraction mint identifier for a vault.
func DeriveFractionMint(vaultID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(fractionSeed, vaultID[:])
}
