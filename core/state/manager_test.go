package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fracvault/native/vault"
	"fracvault/storage"
)

type kvRecord struct {
	Balance *big.Int
	Label   string
}

func testVault() *vault.Vault {
	var asset [32]byte
	asset[0] = 0x42
	var creator [32]byte
	creator[0] = 0x07
	return &vault.Vault{
		AssetID:              asset,
		FractionMint:         vault.DeriveFractionMint(vault.DeriveID(asset)),
		TotalSupply:          1_000,
		Creator:              creator,
		CreatedAt:            100,
		Status:               vault.StatusActive,
		MinReclaimPercentage: 80,
		MinLiquidityPercent:  5,
		MinVolumePercent30d:  10,
	}
}

func TestTxnKVReadWrite(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	defer mgr.Close()

	txn := mgr.Begin()
	var out kvRecord
	ok, err := txn.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, txn.KVPut([]byte("acct"), kvRecord{Balance: big.NewInt(55), Label: "x"}))
	ok, err = txn.KVGet([]byte("acct"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(55), out.Balance.Int64())
	require.Empty(t, db.Keys(), "writes must stay in the overlay until commit")

	require.NoError(t, txn.Commit())
	require.Len(t, db.Keys(), 1)

	reader := mgr.Begin()
	defer reader.Discard()
	var stored kvRecord
	ok, err = reader.KVGet([]byte("acct"), &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", stored.Label)

	_, err = reader.KVGet(nil, &stored)
	require.Error(t, err)
}

func TestTxnDiscardDropsWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	txn := mgr.Begin()
	require.NoError(t, txn.KVPut([]byte("k"), uint64(1)))
	require.True(t, txn.Dirty())
	txn.Discard()
	require.Empty(t, db.Keys())
	require.Error(t, txn.Commit())
}

func TestTxnDelete(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	seed := mgr.Begin()
	require.NoError(t, seed.KVPut([]byte("k"), uint64(9)))
	require.NoError(t, seed.Commit())

	txn := mgr.Begin()
	require.NoError(t, txn.KVDelete([]byte("k")))
	ok, err := txn.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, txn.Commit())

	check := mgr.Begin()
	ok, err = check.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxnCommitDetectsConflict(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	first := mgr.Begin()
	second := mgr.Begin()

	var n uint64
	_, err := first.KVGet([]byte("counter"), &n)
	require.NoError(t, err)
	_, err = second.KVGet([]byte("counter"), &n)
	require.NoError(t, err)

	require.NoError(t, first.KVPut([]byte("counter"), uint64(1)))
	require.NoError(t, second.KVPut([]byte("counter"), uint64(2)))

	require.NoError(t, first.Commit())
	require.ErrorIs(t, second.Commit(), ErrTxnConflict)

	check := mgr.Begin()
	ok, err := check.KVGet([]byte("counter"), &n)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), n)
}

func TestTxnBlindWritesDoNotConflict(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	a := mgr.Begin()
	b := mgr.Begin()
	require.NoError(t, a.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, b.KVPut([]byte("b"), uint64(2)))
	require.NoError(t, a.Commit())
	require.NoError(t, b.Commit())
}

func TestVaultRecordRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	v := testVault()

	txn := mgr.Begin()
	require.NoError(t, txn.VaultPut(v))
	require.NoError(t, txn.Commit())

	reader := mgr.Begin()
	loaded, ok, err := reader.VaultGet(v.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, v, loaded)

	_, ok, err = reader.VaultGet([32]byte{0x01})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVaultPutRejectsInvalidRecord(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	v := testVault()
	v.TokensInEscrow = 5

	txn := mgr.Begin()
	require.Error(t, txn.VaultPut(v))
	require.False(t, txn.Dirty())
}

func TestVaultGetRejectsCorruptRecord(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	v := testVault()
	require.NoError(t, db.Put(kvKey(vaultRecordKey(v.ID())), []byte{0x01, 0x02}))

	_, _, err := mgr.Begin().VaultGet(v.ID())
	require.Error(t, err)
}
