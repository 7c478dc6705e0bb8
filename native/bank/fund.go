package bank

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient quote balance")
	ErrFundShortfall     = errors.New("bank: vault fund holds less than requested")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
)

// Store is the key-value surface the bank persists through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type balance struct {
	Amount uint64
}

var (
	quotePrefix = []byte("bank/quote/")
	fundPrefix  = []byte("bank/fund/")
)

func prefixedKey(prefix []byte, id [32]byte) []byte {
	buf := make([]byte, len(prefix)+32)
	copy(buf, prefix)
	copy(buf[len(prefix):], id[:])
	return buf
}

// Fund holds quote-asset balances for accounts and the compensation escrow of
// each vault. Amounts are integer micro-units of the quote asset.
type Fund struct {
	store Store
}

// NewFund returns a fund persisting through store.
func NewFund(store Store) *Fund {
	return &Fund{store: store}
}

func (f *Fund) read(key []byte) (uint64, error) {
	var b balance
	if _, err := f.store.KVGet(key, &b); err != nil {
		return 0, err
	}
	return b.Amount, nil
}

func (f *Fund) write(key []byte, amount uint64) error {
	return f.store.KVPut(key, balance{Amount: amount})
}

// Balance returns the free quote balance of account.
func (f *Fund) Balance(account [32]byte) (uint64, error) {
	return f.read(prefixedKey(quotePrefix, account))
}

// Credit adds amount to account's free quote balance.
func (f *Fund) Credit(account [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	key := prefixedKey(quotePrefix, account)
	bal, err := f.read(key)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return f.write(key, bal+amount)
}

// Escrowed returns the compensation currently held for vault.
func (f *Fund) Escrowed(vault [32]byte) (uint64, error) {
	return f.read(prefixedKey(fundPrefix, vault))
}

// Lock moves amount from the free balance of from into vault's escrow.
func (f *Fund) Lock(vault, from [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	fromKey := prefixedKey(quotePrefix, from)
	bal, err := f.read(fromKey)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, amount)
	}
	fundKey := prefixedKey(fundPrefix, vault)
	held, err := f.read(fundKey)
	if err != nil {
		return err
	}
	if held > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := f.write(fromKey, bal-amount); err != nil {
		return err
	}
	return f.write(fundKey, held+amount)
}

// Release returns escrowed compensation to the reclaim initiator.
func (f *Fund) Release(vault, to [32]byte, amount uint64) error {
	return f.move(vault, to, amount)
}

// Pay transfers compensation from vault's escrow to a fraction holder.
func (f *Fund) Pay(vault, to [32]byte, amount uint64) error {
	return f.move(vault, to, amount)
}

func (f *Fund) move(vault, to [32]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	fundKey := prefixedKey(fundPrefix, vault)
	held, err := f.read(fundKey)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: holds %d, need %d", ErrFundShortfall, held, amount)
	}
	toKey := prefixedKey(quotePrefix, to)
	bal, err := f.read(toKey)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := f.write(fundKey, held-amount); err != nil {
		return err
	}
	return f.write(toKey, bal+amount)
}
