package vault

import "errors"

var (
	// ErrInvalidState is returned when an operation is attempted from a status
	// that does not permit it. Not retryable without a state change.
	ErrInvalidState = errors.New("vault: invalid state for operation")
	// ErrNotEligible is returned when a market threshold fails. Retryable once
	// pool conditions change.
	ErrNotEligible = errors.New("vault: reclaim not eligible")
	// ErrInsufficientHolding is returned when the initiator does not present or
	// own the required share of the fraction supply.
	ErrInsufficientHolding = errors.New("vault: insufficient fraction holding")
	// ErrAssetTransferFailed wraps a custody failure during finalization.
	ErrAssetTransferFailed = errors.New("vault: asset transfer failed")
	// ErrInsufficientEscrow is returned when a disbursement exceeds the
	// remaining compensation. Partial payments are never made.
	ErrInsufficientEscrow = errors.New("vault: insufficient compensation escrow")

	ErrUnauthorized            = errors.New("vault: caller not authorized")
	ErrEscrowPeriodActive      = errors.New("vault: escrow period has not ended")
	ErrReclaimNotExpired       = errors.New("vault: reclaim has not expired")
	ErrCompensationOutstanding = errors.New("vault: compensation still held in escrow")
	ErrMathOverflow            = errors.New("vault: math overflow")
	ErrVaultNotFound           = errors.New("vault: not found")
	ErrVaultExists             = errors.New("vault: already exists for asset")
	ErrInvalidAmount           = errors.New("vault: amount must be positive")
	ErrInvalidTimestamp        = errors.New("vault: timestamp precedes recorded lifecycle")

	errNilState       = errors.New("vault engine: state not configured")
	errNilFractions   = errors.New("vault engine: fraction ledger not configured")
	errNilCustody     = errors.New("vault engine: asset custody not configured")
	errNilFund        = errors.New("vault engine: compensation fund not configured")
	errEscrowOverflow = errors.New("vault: tokens in escrow exceed total supply")
)
