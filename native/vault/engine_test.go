package vault

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"fracvault/core/events"
	"fracvault/native/common"
)

type holderKey struct {
	mint   [32]byte
	holder [32]byte
}

type mockState struct {
	vaults   map[[32]byte]*Vault
	balances map[holderKey]uint64
	escrowed map[[32]byte]uint64
	supply   map[[32]byte]uint64
	quote    map[[32]byte]uint64
	fund     map[[32]byte]uint64
	custody  map[[32]byte][32]byte

	failTransfer bool
	failFundLock bool
}

func newMockState() *mockState {
	return &mockState{
		vaults:   make(map[[32]byte]*Vault),
		balances: make(map[holderKey]uint64),
		escrowed: make(map[[32]byte]uint64),
		supply:   make(map[[32]byte]uint64),
		quote:    make(map[[32]byte]uint64),
		fund:     make(map[[32]byte]uint64),
		custody:  make(map[[32]byte][32]byte),
	}
}

func newTestID(fill byte) [32]byte {
	var id [32]byte
	copy(id[:], bytes.Repeat([]byte{fill}, 32))
	return id
}

func (m *mockState) VaultGet(id [32]byte) (*Vault, bool, error) {
	v, ok := m.vaults[id]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) VaultPut(v *Vault) error {
	if err := v.Validate(); err != nil {
		return err
	}
	m.vaults[v.ID()] = v.Clone()
	return nil
}

func (m *mockState) Mint(mint, to [32]byte, amount uint64) error {
	m.balances[holderKey{mint, to}] += amount
	m.supply[mint] += amount
	return nil
}

func (m *mockState) Lock(mint, holder [32]byte, amount uint64) error {
	key := holderKey{mint, holder}
	if m.balances[key] < amount {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[key] -= amount
	m.escrowed[mint] += amount
	return nil
}

func (m *mockState) Unlock(mint, to [32]byte, amount uint64) error {
	if m.escrowed[mint] < amount {
		return fmt.Errorf("insufficient escrow")
	}
	m.escrowed[mint] -= amount
	m.balances[holderKey{mint, to}] += amount
	return nil
}

func (m *mockState) Burn(mint [32]byte, amount uint64) error {
	if m.escrowed[mint] < amount {
		return fmt.Errorf("insufficient escrow")
	}
	m.escrowed[mint] -= amount
	m.supply[mint] -= amount
	return nil
}

func (m *mockState) BurnFrom(mint, holder [32]byte, amount uint64) error {
	key := holderKey{mint, holder}
	if m.balances[key] < amount {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[key] -= amount
	m.supply[mint] -= amount
	return nil
}

func (m *mockState) BalanceOf(mint, holder [32]byte) (uint64, error) {
	return m.balances[holderKey{mint, holder}], nil
}

func (m *mockState) Deposit(asset, _ [32]byte, vaultID [32]byte) error {
	if _, ok := m.custody[asset]; ok {
		return fmt.Errorf("asset already in custody")
	}
	m.custody[asset] = vaultID
	return nil
}

func (m *mockState) TransferOut(asset, destination [32]byte) error {
	if m.failTransfer {
		return fmt.Errorf("custody offline")
	}
	m.custody[asset] = destination
	return nil
}

type mockFund struct{ *mockState }

func (f mockFund) Lock(vaultID, from [32]byte, amount uint64) error {
	if f.failFundLock {
		return fmt.Errorf("fund unavailable")
	}
	if f.quote[from] < amount {
		return fmt.Errorf("insufficient quote balance")
	}
	f.quote[from] -= amount
	f.fund[vaultID] += amount
	return nil
}

func (f mockFund) Release(vaultID, to [32]byte, amount uint64) error {
	return f.Pay(vaultID, to, amount)
}

func (f mockFund) Pay(vaultID, to [32]byte, amount uint64) error {
	if f.fund[vaultID] < amount {
		return fmt.Errorf("fund short")
	}
	f.fund[vaultID] -= amount
	f.quote[to] += amount
	return nil
}

func (f mockFund) Escrowed(vaultID [32]byte) (uint64, error) {
	return f.fund[vaultID], nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

var testParams = Params{EscrowPeriodSeconds: 86_400, ReclaimExpirySeconds: 7 * 86_400}

const (
	testCreatedAt = int64(1_700_000_000)
	testSupply    = uint64(1_000_000)
	testPrice     = uint64(2_000_000)
)

var (
	testAsset   = newTestID(0xA1)
	testCreator = newTestID(0xC1)
	testHolderB = newTestID(0xB2)
	testHolderC = newTestID(0xB3)
	testPool    = newTestID(0xD0)
)

func healthyPool() PoolSnapshot {
	return PoolSnapshot{PoolAgeSeconds: 3_600, LiquidityPercent: 5, VolumePercent30d: 10}
}

type fixture struct {
	engine  *Engine
	state   *mockState
	emitter *captureEmitter
	pauses  *common.PauseSet
	id      [32]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMockState()
	em := &captureEmitter{}
	pauses := common.NewPauseSet()
	eng := NewEngine(testParams)
	eng.SetState(st)
	eng.SetFractions(st)
	eng.SetCustody(st)
	eng.SetFund(mockFund{st})
	eng.SetEmitter(em)
	eng.SetPauses(pauses)

	v, err := eng.Fractionalize(FractionalizeRequest{
		Creator:     testCreator,
		AssetID:     testAsset,
		TotalSupply: testSupply,
		Thresholds:  Thresholds{MinLPAgeSeconds: 3_600},
	}, testCreatedAt)
	if err != nil {
		t.Fatalf("fractionalize: %v", err)
	}
	st.quote[testCreator] = 1_000_000_000_000
	return &fixture{engine: eng, state: st, emitter: em, pauses: pauses, id: v.ID()}
}

func (f *fixture) encoded(t *testing.T) []byte {
	t.Helper()
	v, ok := f.state.vaults[f.id]
	if !ok {
		t.Fatalf("vault missing")
	}
	raw, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func (f *fixture) initiate(t *testing.T, amount uint64) *Vault {
	t.Helper()
	v, err := f.engine.InitiateReclaim(f.id, testCreator, amount, healthyPool(), testPrice, testCreatedAt+10)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return v
}

func (f *fixture) finalize(t *testing.T) *Vault {
	t.Helper()
	v, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, testCreatedAt+10+testParams.EscrowPeriodSeconds)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return v
}

func TestFractionalizeDefaultsAndMint(t *testing.T) {
	f := newFixture(t)
	v := f.state.vaults[f.id]
	if v.Status != StatusActive {
		t.Fatalf("expected Active, got %s", v.Status)
	}
	if v.MinReclaimPercentage != 80 || v.MinLiquidityPercent != 5 || v.MinVolumePercent30d != 10 {
		t.Fatalf("defaults not applied: %+v", v.Thresholds())
	}
	if v.FractionMint != DeriveFractionMint(f.id) {
		t.Fatalf("unexpected fraction mint")
	}
	if got := f.state.balances[holderKey{v.FractionMint, testCreator}]; got != testSupply {
		t.Fatalf("creator balance = %d, want %d", got, testSupply)
	}
	if f.state.custody[testAsset] != f.id {
		t.Fatalf("asset not in vault custody")
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType() != events.TypeVaultFractionalized {
		t.Fatalf("expected fractionalized event, got %+v", f.emitter.events)
	}
	if _, err := f.engine.Fractionalize(FractionalizeRequest{Creator: testCreator, AssetID: testAsset, TotalSupply: 1}, testCreatedAt); !errors.Is(err, ErrVaultExists) {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}
}

func TestFractionalizeRejectsBadThresholds(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Fractionalize(FractionalizeRequest{
		Creator:     testCreator,
		AssetID:     newTestID(0xA2),
		TotalSupply: 10,
		Thresholds:  Thresholds{MinReclaimPercentage: 101},
	}, testCreatedAt)
	if err == nil {
		t.Fatalf("expected threshold validation error")
	}
	if _, err := f.engine.Fractionalize(FractionalizeRequest{Creator: testCreator, AssetID: newTestID(0xA3)}, testCreatedAt); err == nil {
		t.Fatalf("expected zero supply to be rejected")
	}
}

func TestInitiateReclaimBoundary(t *testing.T) {
	f := newFixture(t)
	before := f.encoded(t)
	_, err := f.engine.InitiateReclaim(f.id, testCreator, 799_999, healthyPool(), testPrice, testCreatedAt+10)
	if !errors.Is(err, ErrInsufficientHolding) {
		t.Fatalf("expected ErrInsufficientHolding, got %v", err)
	}
	var violation *Ineligibility
	if !errors.As(err, &violation) || violation.Reason != ReasonInsufficientHolding || violation.Required != 800_000 {
		t.Fatalf("unexpected violation: %+v", violation)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("rejected initiation mutated vault")
	}

	v := f.initiate(t, 800_000)
	if v.Status != StatusReclaimInitiated {
		t.Fatalf("expected ReclaimInitiated, got %s", v.Status)
	}
	if v.TotalCompensation != 200_000*testPrice || v.RemainingCompensation != v.TotalCompensation {
		t.Fatalf("unexpected compensation: total=%d remaining=%d", v.TotalCompensation, v.RemainingCompensation)
	}
	creatorBal := f.state.balances[holderKey{v.FractionMint, testCreator}]
	if v.TokensInEscrow+creatorBal != testSupply {
		t.Fatalf("supply not accounted: escrow=%d balance=%d", v.TokensInEscrow, creatorBal)
	}
	if f.state.fund[f.id] != v.TotalCompensation {
		t.Fatalf("compensation not locked: %d", f.state.fund[f.id])
	}
}

func TestInitiateReclaimThresholdReasons(t *testing.T) {
	cases := []struct {
		name   string
		pool   PoolSnapshot
		reason Reason
	}{
		{"young pool", PoolSnapshot{PoolAgeSeconds: 3_599, LiquidityPercent: 5, VolumePercent30d: 10}, ReasonPoolTooYoung},
		{"thin liquidity", PoolSnapshot{PoolAgeSeconds: 3_600, LiquidityPercent: 4, VolumePercent30d: 10}, ReasonLiquidityTooLow},
		{"low volume", PoolSnapshot{PoolAgeSeconds: 3_600, LiquidityPercent: 5, VolumePercent30d: 9}, ReasonVolumeTooLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.encoded(t)
			_, err := f.engine.InitiateReclaim(f.id, testCreator, 900_000, tc.pool, testPrice, testCreatedAt+10)
			if !errors.Is(err, ErrNotEligible) {
				t.Fatalf("expected ErrNotEligible, got %v", err)
			}
			var violation *Ineligibility
			if !errors.As(err, &violation) || violation.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %+v", tc.reason, violation)
			}
			if !IsRetryable(err) {
				t.Fatalf("threshold failures should be retryable")
			}
			if !bytes.Equal(before, f.encoded(t)) {
				t.Fatalf("vault mutated on rejected initiation")
			}
		})
	}
}

func TestInitiateReclaimRequiresOwnedBalance(t *testing.T) {
	f := newFixture(t)
	mint := f.state.vaults[f.id].FractionMint
	if err := f.state.BurnFrom(mint, testCreator, 300_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.state.balances[holderKey{mint, testHolderB}] = 300_000
	_, err := f.engine.InitiateReclaim(f.id, testCreator, 800_000, healthyPool(), testPrice, testCreatedAt+10)
	if !errors.Is(err, ErrInsufficientHolding) {
		t.Fatalf("expected ErrInsufficientHolding for unowned tokens, got %v", err)
	}
}

func TestInitiateReclaimZeroPrice(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitiateReclaim(f.id, testCreator, 800_000, healthyPool(), 0, testCreatedAt+10)
	var violation *Ineligibility
	if !errors.As(err, &violation) || violation.Reason != ReasonTWAPPriceUnavailable {
		t.Fatalf("expected price unavailable, got %v", err)
	}
}

func TestInitiateReclaimFundFailureLeavesVault(t *testing.T) {
	f := newFixture(t)
	f.state.quote[testCreator] = 1
	before := f.encoded(t)
	if _, err := f.engine.InitiateReclaim(f.id, testCreator, 800_000, healthyPool(), testPrice, testCreatedAt+10); err == nil {
		t.Fatalf("expected compensation lock failure")
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("vault mutated on failed fund lock")
	}
}

func TestSecondInitiateIsInvalidState(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, 800_000)
	before := f.encoded(t)
	_, err := f.engine.InitiateReclaim(f.id, testCreator, 100_000, healthyPool(), testPrice, testCreatedAt+20)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("vault mutated on illegal edge")
	}
}

func TestIllegalEdgesLeaveRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	before := f.encoded(t)
	now := testCreatedAt + 100
	if _, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalize from Active: %v", err)
	}
	if _, err := f.engine.CancelReclaim(f.id, testCreator, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel from Active: %v", err)
	}
	if _, err := f.engine.ExpireReclaim(f.id, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expire from Active: %v", err)
	}
	if _, err := f.engine.Close(f.id, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("close from Active: %v", err)
	}
	if _, err := f.engine.Disburse(f.id, testHolderB, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("disburse from Active: %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("record changed after rejected calls")
	}

	f.initiate(t, 800_000)
	before = f.encoded(t)
	if _, err := f.engine.Close(f.id, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("close from ReclaimInitiated: %v", err)
	}
	if _, err := f.engine.Disburse(f.id, testHolderB, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("disburse from ReclaimInitiated: %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("record changed after rejected calls")
	}
}

func TestIllegalEdgesFromTerminalStates(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, testSupply)
	v := f.finalize(t)
	later := v.ReclaimedAt + testParams.ReclaimExpirySeconds

	before := f.encoded(t)
	if _, err := f.engine.InitiateReclaim(f.id, testCreator, testSupply, healthyPool(), testPrice, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("initiate from ReclaimFinalized: %v", err)
	}
	if _, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalize from ReclaimFinalized: %v", err)
	}
	if _, err := f.engine.CancelReclaim(f.id, testCreator, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel from ReclaimFinalized: %v", err)
	}
	if _, err := f.engine.ExpireReclaim(f.id, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expire from ReclaimFinalized: %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("finalized record changed after rejected calls")
	}

	if _, err := f.engine.Close(f.id, later); err != nil {
		t.Fatalf("close: %v", err)
	}
	before = f.encoded(t)
	if _, err := f.engine.InitiateReclaim(f.id, testCreator, testSupply, healthyPool(), testPrice, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("initiate from Closed: %v", err)
	}
	if _, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalize from Closed: %v", err)
	}
	if _, err := f.engine.CancelReclaim(f.id, testCreator, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel from Closed: %v", err)
	}
	if _, err := f.engine.ExpireReclaim(f.id, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expire from Closed: %v", err)
	}
	if _, err := f.engine.Disburse(f.id, testCreator, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("disburse from Closed: %v", err)
	}
	if _, err := f.engine.Close(f.id, later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("close from Closed: %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("closed record changed after rejected calls")
	}
}

func TestOversizedWindowsCannotSkipEscrow(t *testing.T) {
	huge := Params{EscrowPeriodSeconds: math.MaxInt64 - 10, ReclaimExpirySeconds: math.MaxInt64}
	if err := huge.Validate(); err == nil {
		t.Fatalf("expected oversized windows to be rejected")
	}
	if got := huge.ExpiresAt(testCreatedAt); got != math.MaxInt64 {
		t.Fatalf("expiry wrapped to %d", got)
	}
	if got := huge.EscrowEndsAt(testCreatedAt); got != math.MaxInt64 {
		t.Fatalf("escrow end wrapped to %d", got)
	}

	f := newFixture(t)
	f.engine.params = huge
	v := f.initiate(t, 800_000)
	if _, err := f.engine.ExpireReclaim(f.id, v.ReclaimInitiatedAt); !errors.Is(err, ErrReclaimNotExpired) {
		t.Fatalf("expire at initiation instant: %v", err)
	}
	if _, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, v.ReclaimInitiatedAt); !errors.Is(err, ErrEscrowPeriodActive) {
		t.Fatalf("finalize at initiation instant: %v", err)
	}
}

func TestInitiateCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	before := f.encoded(t)
	mint := f.state.vaults[f.id].FractionMint
	quoteBefore := f.state.quote[testCreator]

	f.initiate(t, 850_000)
	if _, err := f.engine.CancelReclaim(f.id, testHolderB, testCreatedAt+20); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-initiator cancel, got %v", err)
	}
	v, err := f.engine.CancelReclaim(f.id, testCreator, testCreatedAt+20)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if v.Status != StatusActive {
		t.Fatalf("expected Active after cancel, got %s", v.Status)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("cancel did not restore the pre-initiation record")
	}
	if f.state.balances[holderKey{mint, testCreator}] != testSupply || f.state.escrowed[mint] != 0 {
		t.Fatalf("fractions not returned")
	}
	if f.state.quote[testCreator] != quoteBefore || f.state.fund[f.id] != 0 {
		t.Fatalf("compensation not returned")
	}
	last := f.emitter.events[len(f.emitter.events)-1]
	if last.EventType() != events.TypeVaultReclaimCancelled {
		t.Fatalf("expected cancelled event, got %s", last.EventType())
	}
}

func TestExpireReclaimWindow(t *testing.T) {
	f := newFixture(t)
	v := f.initiate(t, 800_000)
	expiresAt := testParams.ExpiresAt(v.ReclaimInitiatedAt)
	if _, err := f.engine.ExpireReclaim(f.id, expiresAt-1); !errors.Is(err, ErrReclaimNotExpired) {
		t.Fatalf("expected ErrReclaimNotExpired, got %v", err)
	}
	f.pauses.Set(ModuleName, true)
	v, err := f.engine.ExpireReclaim(f.id, expiresAt)
	if err != nil {
		t.Fatalf("expire while paused: %v", err)
	}
	if v.Status != StatusActive || v.ReclaimInitiatedAt != 0 || v.TokensInEscrow != 0 {
		t.Fatalf("escrow state not cleared: %+v", v)
	}
	last := f.emitter.events[len(f.emitter.events)-1]
	if last.EventType() != events.TypeVaultReclaimExpired {
		t.Fatalf("expected expired event, got %s", last.EventType())
	}
}

func TestFinalizeReclaim(t *testing.T) {
	f := newFixture(t)
	v := f.initiate(t, 800_000)
	mint := v.FractionMint
	early := testParams.EscrowEndsAt(v.ReclaimInitiatedAt) - 1
	if _, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, early); !errors.Is(err, ErrEscrowPeriodActive) {
		t.Fatalf("expected ErrEscrowPeriodActive, got %v", err)
	}
	if _, err := f.engine.FinalizeReclaim(f.id, testHolderB, testPool, early+1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	v = f.finalize(t)
	if v.Status != StatusReclaimFinalized || v.ReclaimedAt == 0 {
		t.Fatalf("unexpected finalized record: %+v", v)
	}
	if v.RemainingCompensation != v.TotalCompensation || v.TWAPPriceAtReclaim != testPrice {
		t.Fatalf("finalization touched compensation snapshot")
	}
	if f.state.custody[testAsset] != testCreator {
		t.Fatalf("asset not transferred to initiator")
	}
	if f.state.escrowed[mint] != 0 || f.state.supply[mint] != testSupply-800_000 {
		t.Fatalf("escrowed fractions not burned")
	}
}

func TestFinalizeTransferFailureLeavesVault(t *testing.T) {
	f := newFixture(t)
	v := f.initiate(t, 800_000)
	f.state.failTransfer = true
	before := f.encoded(t)
	_, err := f.engine.FinalizeReclaim(f.id, testCreator, testPool, testParams.EscrowEndsAt(v.ReclaimInitiatedAt))
	if !errors.Is(err, ErrAssetTransferFailed) {
		t.Fatalf("expected ErrAssetTransferFailed, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("transfer failures should be retryable")
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("vault mutated on failed transfer")
	}
	if _, err := f.engine.CancelReclaim(f.id, testCreator, v.ReclaimInitiatedAt+1); err != nil {
		t.Fatalf("stuck reclaim must stay cancellable: %v", err)
	}
}

func TestDisburseDrainsCompensation(t *testing.T) {
	f := newFixture(t)
	v := f.initiate(t, 800_000)
	mint := v.FractionMint
	// Creator sold the minority portion before reclaiming.
	f.state.balances[holderKey{mint, testCreator}] -= 200_000
	f.state.balances[holderKey{mint, testHolderB}] = 150_000
	f.state.balances[holderKey{mint, testHolderC}] = 50_000
	f.finalize(t)

	total := uint64(200_000) * testPrice
	paid, err := f.engine.Disburse(f.id, testHolderB, 150_000)
	if err != nil {
		t.Fatalf("disburse B: %v", err)
	}
	if paid != 150_000*testPrice {
		t.Fatalf("paid %d, want %d", paid, 150_000*testPrice)
	}
	if rem := f.state.vaults[f.id].RemainingCompensation; rem != total-paid {
		t.Fatalf("remaining %d, want %d", rem, total-paid)
	}

	// Replayed request for already redeemed fractions fails and changes nothing.
	before := f.encoded(t)
	if _, err := f.engine.Disburse(f.id, testHolderB, 150_000); err == nil {
		t.Fatalf("expected double redemption to fail")
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("failed disbursement changed the record")
	}

	paidC, err := f.engine.Disburse(f.id, testHolderC, 50_000)
	if err != nil {
		t.Fatalf("disburse C: %v", err)
	}
	if paid+paidC != total {
		t.Fatalf("disbursements %d do not sum to total %d", paid+paidC, total)
	}
	if rem := f.state.vaults[f.id].RemainingCompensation; rem != 0 {
		t.Fatalf("remaining %d, want 0", rem)
	}
	if f.state.quote[testHolderB] != paid || f.state.quote[testHolderC] != paidC {
		t.Fatalf("holders not paid")
	}

	f.state.balances[holderKey{mint, testHolderC}] = 1
	before = f.encoded(t)
	if _, err := f.engine.Disburse(f.id, testHolderC, 1); !errors.Is(err, ErrInsufficientEscrow) {
		t.Fatalf("expected ErrInsufficientEscrow, got %v", err)
	}
	if !bytes.Equal(before, f.encoded(t)) {
		t.Fatalf("rejected disbursement changed the record")
	}

	closed, err := f.engine.Close(f.id, testCreatedAt+testParams.ReclaimExpirySeconds)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("expected Closed, got %s", closed.Status)
	}
	if _, err := f.engine.Disburse(f.id, testHolderC, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("closed vault accepted disbursement: %v", err)
	}
	if _, err := f.engine.InitiateReclaim(f.id, testCreator, 1, healthyPool(), testPrice, testCreatedAt+testParams.ReclaimExpirySeconds); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("closed vault accepted initiation: %v", err)
	}
}

func TestCloseRequiresDrainedCompensation(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, 800_000)
	v := f.finalize(t)
	if _, err := f.engine.Close(f.id, v.ReclaimedAt); !errors.Is(err, ErrCompensationOutstanding) {
		t.Fatalf("expected ErrCompensationOutstanding, got %v", err)
	}
}

func TestFullSupplyReclaimClosesImmediately(t *testing.T) {
	f := newFixture(t)
	v := f.initiate(t, testSupply)
	if v.TotalCompensation != 0 {
		t.Fatalf("full-supply reclaim owes no compensation, got %d", v.TotalCompensation)
	}
	v = f.finalize(t)
	if _, err := f.engine.Close(f.id, v.ReclaimedAt); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPausedModuleBlocksInitiation(t *testing.T) {
	f := newFixture(t)
	f.pauses.Set(ModuleName, true)
	_, err := f.engine.InitiateReclaim(f.id, testCreator, 800_000, healthyPool(), testPrice, testCreatedAt+10)
	if !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestEngineRequiresCollaborators(t *testing.T) {
	eng := NewEngine(testParams)
	if _, err := eng.InitiateReclaim(newTestID(1), testCreator, 1, healthyPool(), 1, 1); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	eng.SetState(newMockState())
	if _, err := eng.Close(newTestID(1), 1); !errors.Is(err, errNilFractions) {
		t.Fatalf("expected errNilFractions, got %v", err)
	}
}
