package vault

import (
	"errors"
	"fmt"

	"fracvault/core/events"
	"fracvault/native/common"
)

// VaultState persists vault records. Implementations must return copies so the
// engine can mutate a loaded record without touching stored state.
type VaultState interface {
	VaultGet(id [32]byte) (*Vault, bool, error)
	VaultPut(v *Vault) error
}

// FractionLedger is the fraction-token collaborator. Lock moves tokens from a
// holder into the mint's escrow; Unlock and Burn act on that escrow.
type FractionLedger interface {
	Mint(mint, to [32]byte, amount uint64) error
	Lock(mint, holder [32]byte, amount uint64) error
	Unlock(mint, to [32]byte, amount uint64) error
	Burn(mint [32]byte, amount uint64) error
	BurnFrom(mint, holder [32]byte, amount uint64) error
	BalanceOf(mint, holder [32]byte) (uint64, error)
}

// AssetCustody holds the original asset while the vault is live.
type AssetCustody interface {
	Deposit(asset, ledgerID, vault [32]byte) error
	TransferOut(asset, destination [32]byte) error
}

// CompensationFund holds the value owed to minority fraction holders.
type CompensationFund interface {
	Lock(vault, from [32]byte, amount uint64) error
	Release(vault, to [32]byte, amount uint64) error
	Pay(vault, to [32]byte, amount uint64) error
	Escrowed(vault [32]byte) (uint64, error)
}

// Engine implements the vault lifecycle transitions. It performs no locking:
// callers serialise access per vault and discard the backing state when a
// transition returns an error, which gives every operation all-or-nothing
// semantics. Loaded records are only written back after every delegated call
// has succeeded.
type Engine struct {
	params    Params
	state     VaultState
	fractions FractionLedger
	custody   AssetCustody
	fund      CompensationFund
	emitter   events.Emitter
	pauses    common.PauseView
}

// NewEngine creates an engine with a no-op emitter. Collaborators are wired via
// the setters.
func NewEngine(params Params) *Engine {
	return &Engine{params: params, emitter: events.NoopEmitter{}}
}

// Params returns the deployment parameters in use.
func (e *Engine) Params() Params { return e.params }

// SetState configures the vault record store.
func (e *Engine) SetState(state VaultState) { e.state = state }

// SetFractions configures the fraction-token ledger.
func (e *Engine) SetFractions(l FractionLedger) { e.fractions = l }

// SetCustody configures the asset custodian.
func (e *Engine) SetCustody(c AssetCustody) { e.custody = c }

// SetFund configures the compensation fund.
func (e *Engine) SetFund(f CompensationFund) { e.fund = f }

// SetPauses configures the pause view consulted before mutating operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.fractions == nil:
		return errNilFractions
	case e.custody == nil:
		return errNilCustody
	case e.fund == nil:
		return errNilFund
	}
	return nil
}

func (e *Engine) guard() error {
	return common.Guard(e.pauses, ModuleName)
}

// Vault loads the vault identified by id.
func (e *Engine) Vault(id [32]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok, err := e.state.VaultGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v, nil
}

func (e *Engine) load(id [32]byte) (*Vault, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.Vault(id)
}

func (e *Engine) store(v *Vault) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return e.state.VaultPut(v)
}

// FractionalizeRequest describes a new vault.
type FractionalizeRequest struct {
	Creator       [32]byte
	AssetID       [32]byte
	AssetLedgerID [32]byte
	TotalSupply   uint64
	Thresholds    Thresholds
}

// Fractionalize takes custody of the asset, mints the full fraction supply to
// the creator and records an Active vault.
func (e *Engine) Fractionalize(req FractionalizeRequest, now int64) (*Vault, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if req.TotalSupply == 0 {
		return nil, fmt.Errorf("vault: total supply must be positive")
	}
	if req.AssetID == ([32]byte{}) || req.Creator == ([32]byte{}) {
		return nil, fmt.Errorf("vault: asset and creator identifiers required")
	}
	if now <= 0 {
		return nil, ErrInvalidTimestamp
	}
	thresholds := req.Thresholds.WithDefaults()
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	id := DeriveID(req.AssetID)
	if _, ok, err := e.state.VaultGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrVaultExists
	}
	v := &Vault{
		AssetID:              req.AssetID,
		AssetLedgerID:        req.AssetLedgerID,
		FractionMint:         DeriveFractionMint(id),
		TotalSupply:          req.TotalSupply,
		Creator:              req.Creator,
		CreatedAt:            now,
		Status:               StatusActive,
		MinLPAgeSeconds:      thresholds.MinLPAgeSeconds,
		MinReclaimPercentage: thresholds.MinReclaimPercentage,
		MinLiquidityPercent:  thresholds.MinLiquidityPercent,
		MinVolumePercent30d:  thresholds.MinVolumePercent30d,
	}
	if err := e.custody.Deposit(v.AssetID, v.AssetLedgerID, id); err != nil {
		return nil, fmt.Errorf("vault: take custody: %w", err)
	}
	if err := e.fractions.Mint(v.FractionMint, v.Creator, v.TotalSupply); err != nil {
		return nil, fmt.Errorf("vault: mint fractions: %w", err)
	}
	if err := e.store(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultFractionalized{
		Vault:                id,
		Creator:              v.Creator,
		Asset:                v.AssetID,
		FractionMint:         v.FractionMint,
		TotalSupply:          v.TotalSupply,
		MinLPAgeSeconds:      v.MinLPAgeSeconds,
		MinReclaimPercentage: v.MinReclaimPercentage,
		MinLiquidityPercent:  v.MinLiquidityPercent,
		MinVolumePercent30d:  v.MinVolumePercent30d,
		Timestamp:            now,
	})
	return v.Clone(), nil
}

// InitiateReclaim locks amount fractions from the initiator, prices the
// minority supply at twapPrice and locks that compensation from the initiator.
// The price and compensation recorded here are never recomputed.
func (e *Engine) InitiateReclaim(id, initiator [32]byte, amount uint64, pool PoolSnapshot, twapPrice uint64, now int64) (*Vault, error) {
	v, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if v.Status != StatusActive {
		return nil, fmt.Errorf("%w: initiate reclaim from %s", ErrInvalidState, v.Status)
	}
	if initiator == ([32]byte{}) {
		return nil, ErrUnauthorized
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount > v.TotalSupply {
		return nil, fmt.Errorf("%w: amount %d exceeds supply %d", ErrInsufficientHolding, amount, v.TotalSupply)
	}
	if violation := Evaluate(v, pool, amount, now); violation != nil {
		return nil, violation
	}
	if twapPrice == 0 {
		return nil, &Ineligibility{Reason: ReasonTWAPPriceUnavailable, Required: 1}
	}
	balance, err := e.fractions.BalanceOf(v.FractionMint, initiator)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d below presented %d", ErrInsufficientHolding, balance, amount)
	}
	total, err := TotalCompensation(v.TotalSupply, amount, twapPrice)
	if err != nil {
		return nil, err
	}
	if err := e.fractions.Lock(v.FractionMint, initiator, amount); err != nil {
		return nil, fmt.Errorf("vault: lock fractions: %w", err)
	}
	if total > 0 {
		if err := e.fund.Lock(id, initiator, total); err != nil {
			return nil, fmt.Errorf("vault: lock compensation: %w", err)
		}
	}
	v.Status = StatusReclaimInitiated
	v.ReclaimInitiator = initiator
	v.ReclaimInitiatedAt = now
	v.TokensInEscrow = amount
	v.TWAPPriceAtReclaim = twapPrice
	v.TotalCompensation = total
	v.RemainingCompensation = total
	if err := e.store(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultReclaimInitiated{
		Vault:             id,
		Initiator:         initiator,
		TokensLocked:      amount,
		MinorityTokens:    v.MinorityTokens(),
		TWAPPrice:         twapPrice,
		TotalCompensation: total,
		EscrowEndsAt:      e.params.EscrowEndsAt(now),
		Timestamp:         now,
	})
	return v.Clone(), nil
}

// FinalizeReclaim releases the asset to the initiator and burns the escrowed
// fractions once the escrow period has elapsed. The pool address is supplied by
// the caller, is not persisted and only appears in the emitted event.
func (e *Engine) FinalizeReclaim(id, caller, pool [32]byte, now int64) (*Vault, error) {
	v, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if v.Status != StatusReclaimInitiated {
		return nil, fmt.Errorf("%w: finalize reclaim from %s", ErrInvalidState, v.Status)
	}
	if caller != v.ReclaimInitiator {
		return nil, fmt.Errorf("%w: only the reclaim initiator can finalize", ErrUnauthorized)
	}
	if now < v.ReclaimInitiatedAt {
		return nil, ErrInvalidTimestamp
	}
	if now < e.params.EscrowEndsAt(v.ReclaimInitiatedAt) {
		return nil, fmt.Errorf("%w: ends at %d", ErrEscrowPeriodActive, e.params.EscrowEndsAt(v.ReclaimInitiatedAt))
	}
	if err := e.custody.TransferOut(v.AssetID, v.ReclaimInitiator); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
	}
	if err := e.fractions.Burn(v.FractionMint, v.TokensInEscrow); err != nil {
		return nil, fmt.Errorf("vault: burn escrowed fractions: %w", err)
	}
	v.Status = StatusReclaimFinalized
	v.ReclaimedAt = now
	if err := e.store(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultReclaimFinalized{
		Vault:             id,
		Reclaimer:         v.ReclaimInitiator,
		Pool:              pool,
		TokensBurned:      v.TokensInEscrow,
		TWAPPrice:         v.TWAPPriceAtReclaim,
		TotalCompensation: v.TotalCompensation,
		MinorityTokens:    v.MinorityTokens(),
		Timestamp:         now,
	})
	return v.Clone(), nil
}

// CancelReclaim lets the initiator abandon an in-progress reclaim at any time
// before finalization. Cancellation is allowed while the module is paused so
// escrowed tokens can always be recovered.
func (e *Engine) CancelReclaim(id, caller [32]byte, now int64) (*Vault, error) {
	v, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusReclaimInitiated {
		return nil, fmt.Errorf("%w: cancel reclaim from %s", ErrInvalidState, v.Status)
	}
	if caller != v.ReclaimInitiator {
		return nil, fmt.Errorf("%w: only the reclaim initiator can cancel", ErrUnauthorized)
	}
	return e.releaseEscrow(id, v, false, now)
}

// ExpireReclaim unwinds a reclaim that was not finalized within the expiry
// window. Anyone may call it.
func (e *Engine) ExpireReclaim(id [32]byte, now int64) (*Vault, error) {
	v, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusReclaimInitiated {
		return nil, fmt.Errorf("%w: expire reclaim from %s", ErrInvalidState, v.Status)
	}
	if now < e.params.ExpiresAt(v.ReclaimInitiatedAt) {
		return nil, fmt.Errorf("%w: expires at %d", ErrReclaimNotExpired, e.params.ExpiresAt(v.ReclaimInitiatedAt))
	}
	return e.releaseEscrow(id, v, true, now)
}

func (e *Engine) releaseEscrow(id [32]byte, v *Vault, expired bool, now int64) (*Vault, error) {
	if now < v.ReclaimInitiatedAt {
		return nil, ErrInvalidTimestamp
	}
	initiator := v.ReclaimInitiator
	tokens := v.TokensInEscrow
	compensation := v.RemainingCompensation
	if err := e.fractions.Unlock(v.FractionMint, initiator, tokens); err != nil {
		return nil, fmt.Errorf("vault: unlock fractions: %w", err)
	}
	if compensation > 0 {
		if err := e.fund.Release(id, initiator, compensation); err != nil {
			return nil, fmt.Errorf("vault: release compensation: %w", err)
		}
	}
	v.Status = StatusActive
	v.clearEscrow()
	if err := e.store(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultReclaimReleased{
		Expired:              expired,
		Vault:                id,
		Initiator:            initiator,
		TokensReturned:       tokens,
		CompensationReturned: compensation,
		Timestamp:            now,
	})
	return v.Clone(), nil
}

// Disburse redeems amount fractions held by holder for compensation at the
// snapshot price. The holder's fractions are burned so they cannot be
// compensated twice. Requests that exceed the remaining compensation are
// rejected whole.
func (e *Engine) Disburse(id, holder [32]byte, amount uint64) (uint64, error) {
	v, err := e.load(id)
	if err != nil {
		return 0, err
	}
	if err := e.guard(); err != nil {
		return 0, err
	}
	if v.Status != StatusReclaimFinalized {
		return 0, fmt.Errorf("%w: disburse from %s", ErrInvalidState, v.Status)
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	paid, err := PaymentFor(amount, v.TWAPPriceAtReclaim)
	if err != nil {
		return 0, err
	}
	if paid > v.RemainingCompensation {
		return 0, fmt.Errorf("%w: owed %d, remaining %d", ErrInsufficientEscrow, paid, v.RemainingCompensation)
	}
	if err := e.fractions.BurnFrom(v.FractionMint, holder, amount); err != nil {
		return 0, fmt.Errorf("vault: redeem fractions: %w", err)
	}
	if paid > 0 {
		if err := e.fund.Pay(id, holder, paid); err != nil {
			return 0, fmt.Errorf("vault: pay compensation: %w", err)
		}
	}
	v.RemainingCompensation -= paid
	if err := e.store(v); err != nil {
		return 0, err
	}
	e.emit(events.VaultCompensationDisbursed{
		Vault:                 id,
		Holder:                holder,
		TokensBurned:          amount,
		Paid:                  paid,
		RemainingCompensation: v.RemainingCompensation,
	})
	return paid, nil
}

// Close retires a finalized vault once all compensation has been paid out.
func (e *Engine) Close(id [32]byte, now int64) (*Vault, error) {
	v, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusReclaimFinalized {
		return nil, fmt.Errorf("%w: close from %s", ErrInvalidState, v.Status)
	}
	if now < v.ReclaimedAt {
		return nil, ErrInvalidTimestamp
	}
	if v.RemainingCompensation != 0 {
		return nil, fmt.Errorf("%w: %d remaining", ErrCompensationOutstanding, v.RemainingCompensation)
	}
	escrowed, err := e.fund.Escrowed(id)
	if err != nil {
		return nil, err
	}
	if escrowed != 0 {
		return nil, fmt.Errorf("%w: fund holds %d", ErrCompensationOutstanding, escrowed)
	}
	v.Status = StatusClosed
	if err := e.store(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultClosed{Vault: id, Timestamp: now})
	return v.Clone(), nil
}

// IsRetryable reports whether err describes a condition that may clear without
// a change to the vault itself.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrAssetTransferFailed),
		errors.Is(err, ErrEscrowPeriodActive),
		errors.Is(err, ErrReclaimNotExpired),
		errors.Is(err, common.ErrModulePaused):
		return true
	}
	return false
}
