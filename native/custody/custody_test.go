package custody

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fracvault/core/state"
	"fracvault/storage"
)

func TestRegistryCustodyLifecycle(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	txn := mgr.Begin()
	reg := NewRegistry(txn)

	asset := [32]byte{0xA5}
	ledger := [32]byte{0x1E}
	vaultID := [32]byte{0x7A}
	owner := [32]byte{0x0E}

	require.ErrorIs(t, reg.TransferOut(asset, owner), ErrNotInCustody)
	require.NoError(t, reg.Deposit(asset, ledger, vaultID))
	require.ErrorIs(t, reg.Deposit(asset, ledger, vaultID), ErrAlreadyInCustody)

	rec, ok, err := reg.Holder(asset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Record{LedgerID: ledger, Holder: vaultID}, rec)

	require.ErrorIs(t, reg.TransferOut(asset, [32]byte{}), ErrInvalidRecipient)
	require.NoError(t, reg.TransferOut(asset, owner))

	_, ok, err = reg.Holder(asset)
	require.NoError(t, err)
	require.False(t, ok)

	rel, ok, err := reg.Released(asset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner, rel.Recipient)
	require.NoError(t, txn.Commit())
}
