package custody

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInCustody = errors.New("custody: asset already held")
	ErrNotInCustody     = errors.New("custody: asset not held")
	ErrInvalidRecipient = errors.New("custody: recipient required")
)

// Store is the key-value surface custody records persist through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Record tracks which vault holds an asset.
type Record struct {
	LedgerID [32]byte
	Holder   [32]byte
}

// Release records an asset that left custody and who received it.
type Release struct {
	LedgerID  [32]byte
	Recipient [32]byte
}

var (
	heldPrefix     = []byte("custody/held/")
	releasedPrefix = []byte("custody/released/")
)

func assetKey(prefix []byte, asset [32]byte) []byte {
	buf := make([]byte, len(prefix)+32)
	copy(buf, prefix)
	copy(buf[len(prefix):], asset[:])
	return buf
}

// Registry is the custodian of compressed collectibles backing vaults.
type Registry struct {
	store Store
}

// NewRegistry returns a registry persisting through store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Deposit takes custody of asset on behalf of vault.
func (r *Registry) Deposit(asset, ledgerID, vault [32]byte) error {
	ok, err := r.store.KVGet(assetKey(heldPrefix, asset), nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %x", ErrAlreadyInCustody, asset)
	}
	if err := r.store.KVPut(assetKey(heldPrefix, asset), Record{LedgerID: ledgerID, Holder: vault}); err != nil {
		return err
	}
	return r.store.KVDelete(assetKey(releasedPrefix, asset))
}

// TransferOut releases asset from custody to destination.
func (r *Registry) TransferOut(asset, destination [32]byte) error {
	if destination == ([32]byte{}) {
		return ErrInvalidRecipient
	}
	var rec Record
	ok, err := r.store.KVGet(assetKey(heldPrefix, asset), &rec)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %x", ErrNotInCustody, asset)
	}
	if err := r.store.KVDelete(assetKey(heldPrefix, asset)); err != nil {
		return err
	}
	return r.store.KVPut(assetKey(releasedPrefix, asset), Release{LedgerID: rec.LedgerID, Recipient: destination})
}

// Holder returns the vault currently holding asset.
func (r *Registry) Holder(asset [32]byte) (Record, bool, error) {
	var rec Record
	ok, err := r.store.KVGet(assetKey(heldPrefix, asset), &rec)
	if err != nil || !ok {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Released returns the release record for an asset that has left custody.
func (r *Registry) Released(asset [32]byte) (Release, bool, error) {
	var rel Release
	ok, err := r.store.KVGet(assetKey(releasedPrefix, asset), &rel)
	if err != nil || !ok {
		return Release{}, false, err
	}
	return rel, true, nil
}
