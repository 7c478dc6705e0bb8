package fractions

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInsufficientBalance = errors.New("fractions: insufficient balance")
	ErrInsufficientEscrow  = errors.New("fractions: insufficient escrowed supply")
	ErrInvalidAmount       = errors.New("fractions: amount must be positive")
	ErrSupplyOverflow      = errors.New("fractions: supply overflow")
)

// Store is the key-value surface the ledger persists through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// MintState tracks aggregate figures for a fraction mint.
type MintState struct {
	Supply   uint64
	Escrowed uint64
}

type account struct {
	Balance uint64
}

var (
	balancePrefix = []byte("fractions/balance/")
	mintPrefix    = []byte("fractions/mint/")
)

func balanceKey(mint, holder [32]byte) []byte {
	buf := make([]byte, len(balancePrefix)+64)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], mint[:])
	copy(buf[len(balancePrefix)+32:], holder[:])
	return buf
}

func mintKey(mint [32]byte) []byte {
	buf := make([]byte, len(mintPrefix)+32)
	copy(buf, mintPrefix)
	copy(buf[len(mintPrefix):], mint[:])
	return buf
}

// Ledger keeps fraction balances and the per-mint escrow pool. Locked tokens
// leave the holder's balance and are held against the mint until they are
// unlocked or burned.
type Ledger struct {
	store Store
}

// NewLedger returns a ledger persisting through store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) balance(mint, holder [32]byte) (uint64, error) {
	var acct account
	if _, err := l.store.KVGet(balanceKey(mint, holder), &acct); err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

func (l *Ledger) setBalance(mint, holder [32]byte, amount uint64) error {
	return l.store.KVPut(balanceKey(mint, holder), account{Balance: amount})
}

// MintState returns the aggregate supply figures for mint.
func (l *Ledger) MintState(mint [32]byte) (MintState, error) {
	var st MintState
	if _, err := l.store.KVGet(mintKey(mint), &st); err != nil {
		return MintState{}, err
	}
	return st, nil
}

func (l *Ledger) setMintState(mint [32]byte, st MintState) error {
	return l.store.KVPut(mintKey(mint), st)
}

// BalanceOf returns the free balance of holder.
func (l *Ledger) BalanceOf(mint, holder [32]byte) (uint64, error) {
	return l.balance(mint, holder)
}

// Mint creates amount new fractions owned by to.
func (l *Ledger) Mint(mint, to [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	st, err := l.MintState(mint)
	if err != nil {
		return err
	}
	if st.Supply > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	bal, err := l.balance(mint, to)
	if err != nil {
		return err
	}
	st.Supply += amount
	if err := l.setBalance(mint, to, bal+amount); err != nil {
		return err
	}
	return l.setMintState(mint, st)
}

// Transfer moves free balance between holders.
func (l *Ledger) Transfer(mint, from, to [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	fromBal, err := l.balance(mint, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBal, amount)
	}
	toBal, err := l.balance(mint, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(mint, from, fromBal-amount); err != nil {
		return err
	}
	return l.setBalance(mint, to, toBal+amount)
}

// Lock moves amount from holder into the mint's escrow.
func (l *Ledger) Lock(mint, holder [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	bal, err := l.balance(mint, holder)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, bal, amount)
	}
	st, err := l.MintState(mint)
	if err != nil {
		return err
	}
	st.Escrowed += amount
	if err := l.setBalance(mint, holder, bal-amount); err != nil {
		return err
	}
	return l.setMintState(mint, st)
}

// Unlock returns amount from the mint's escrow to to.
func (l *Ledger) Unlock(mint, to [32]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	st, err := l.MintState(mint)
	if err != nil {
		return err
	}
	if st.Escrowed < amount {
		return fmt.Errorf("%w: escrowed %d, need %d", ErrInsufficientEscrow, st.Escrowed, amount)
	}
	bal, err := l.balance(mint, to)
	if err != nil {
		return err
	}
	st.Escrowed -= amount
	if err := l.setBalance(mint, to, bal+amount); err != nil {
		return err
	}
	return l.setMintState(mint, st)
}

// Burn destroys amount from the mint's escrow.
func (l *Ledger) Burn(mint [32]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	st, err := l.MintState(mint)
	if err != nil {
		return err
	}
	if st.Escrowed < amount {
		return fmt.Errorf("%w: escrowed %d, need %d", ErrInsufficientEscrow, st.Escrowed, amount)
	}
	st.Escrowed -= amount
	st.Supply -= amount
	return l.setMintState(mint, st)
}

// BurnFrom destroys amount from holder's free balance.
func (l *Ledger) BurnFrom(mint, holder [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	bal, err := l.balance(mint, holder)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, bal, amount)
	}
	st, err := l.MintState(mint)
	if err != nil {
		return err
	}
	if st.Supply < amount {
		return fmt.Errorf("%w: supply %d below burn %d", ErrInsufficientBalance, st.Supply, amount)
	}
	st.Supply -= amount
	if err := l.setBalance(mint, holder, bal-amount); err != nil {
		return err
	}
	return l.setMintState(mint, st)
}
