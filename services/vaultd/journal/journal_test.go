package journal

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fracvault/core/events"
)

func TestJournalRecordsVaultEventsInOrder(t *testing.T) {
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	j := New(db, nil)

	vaultID := [32]byte{0x01}
	other := [32]byte{0x02}
	j.Emit(events.VaultFractionalized{Vault: vaultID, TotalSupply: 10, Timestamp: 1})
	j.Emit(events.VaultFractionalized{Vault: other, TotalSupply: 5, Timestamp: 1})
	j.Emit(events.QuoteDeposited{Account: vaultID, Amount: 3, Balance: 3})
	j.Emit(events.VaultClosed{Vault: vaultID, Timestamp: 2})

	entries, err := j.ForVault(hex.EncodeToString(vaultID[:]), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, events.TypeVaultFractionalized, entries[0].Type)
	require.Equal(t, "10", entries[0].Attributes["totalSupply"])
	require.Equal(t, events.TypeVaultClosed, entries[1].Type)

	limited, err := j.ForVault(hex.EncodeToString(vaultID[:]), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
