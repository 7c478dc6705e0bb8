package bank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fracvault/core/state"
	"fracvault/storage"
)

func TestFundLockPayRelease(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	fund := NewFund(mgr.Begin())

	vaultID := [32]byte{0x01}
	initiator := [32]byte{0x02}
	holder := [32]byte{0x03}

	require.ErrorIs(t, fund.Credit(initiator, 0), ErrInvalidAmount)
	require.NoError(t, fund.Credit(initiator, 1_000))
	require.ErrorIs(t, fund.Lock(vaultID, initiator, 1_001), ErrInsufficientFunds)
	require.NoError(t, fund.Lock(vaultID, initiator, 600))

	held, err := fund.Escrowed(vaultID)
	require.NoError(t, err)
	require.Equal(t, uint64(600), held)

	require.NoError(t, fund.Pay(vaultID, holder, 250))
	require.ErrorIs(t, fund.Pay(vaultID, holder, 351), ErrFundShortfall)
	require.NoError(t, fund.Release(vaultID, initiator, 350))

	bal, err := fund.Balance(holder)
	require.NoError(t, err)
	require.Equal(t, uint64(250), bal)
	bal, err = fund.Balance(initiator)
	require.NoError(t, err)
	require.Equal(t, uint64(750), bal)
	held, err = fund.Escrowed(vaultID)
	require.NoError(t, err)
	require.Zero(t, held)
}

func TestFundCreditOverflow(t *testing.T) {
	fund := NewFund(state.NewManager(storage.NewMemDB()).Begin())
	account := [32]byte{0x09}
	require.NoError(t, fund.Credit(account, ^uint64(0)))
	require.ErrorIs(t, fund.Credit(account, 1), ErrBalanceOverflow)
}
