package state

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fracvault/native/vault"
	"fracvault/storage"
)

// ErrTxnConflict is returned by Commit when a key read by the transaction was
// changed by another commit in the meantime. The caller should retry on a fresh
// transaction.
var ErrTxnConflict = errors.New("state: transaction conflict")

var errTxnClosed = errors.New("state: transaction already closed")

// Manager owns the backing database and serialises commits.
type Manager struct {
	db       storage.Database
	commitMu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Close releases the backing database.
func (m *Manager) Close() {
	if m != nil && m.db != nil {
		m.db.Close()
	}
}

// Begin opens a transaction. Writes stay in the transaction's overlay until
// Commit; Discard drops them.
func (m *Manager) Begin() *Txn {
	return &Txn{
		m:      m,
		reads:  make(map[string]observed),
		writes: make(map[string]pending),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

type observed struct {
	value []byte
	found bool
}

type pending struct {
	value  []byte
	delete bool
}

// Txn is an isolated view over the manager's database. It is not safe for
// concurrent use.
type Txn struct {
	m      *Manager
	reads  map[string]observed
	writes map[string]pending
	order  []string
	closed bool
}

func (t *Txn) get(hashed []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, errTxnClosed
	}
	k := string(hashed)
	if w, ok := t.writes[k]; ok {
		if w.delete {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	if obs, ok := t.reads[k]; ok {
		return obs.value, obs.found, nil
	}
	data, err := t.m.db.Get(hashed)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		t.reads[k] = observed{}
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	t.reads[k] = observed{value: data, found: true}
	return data, true, nil
}

func (t *Txn) set(hashed []byte, value []byte, del bool) error {
	if t.closed {
		return errTxnClosed
	}
	k := string(hashed)
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = pending{value: append([]byte(nil), value...), delete: del}
	return nil
}

// KVPut RLP-encodes value and stages it under key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.set(kvKey(key), encoded, false)
}

// KVGet retrieves the value stored under key and decodes it into out. The
// boolean reports whether the key existed.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := t.get(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (t *Txn) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return t.set(kvKey(key), nil, true)
}

// VaultGet loads a vault record. Records are stored in their fixed binary
// layout and validated on load.
func (t *Txn) VaultGet(id [32]byte) (*vault.Vault, bool, error) {
	data, ok, err := t.get(kvKey(vaultRecordKey(id)))
	if err != nil || !ok {
		return nil, false, err
	}
	v := new(vault.Vault)
	if err := v.UnmarshalBinary(data); err != nil {
		return nil, false, fmt.Errorf("state: decode vault %x: %w", id, err)
	}
	if err := v.Validate(); err != nil {
		return nil, false, fmt.Errorf("state: vault %x: %w", id, err)
	}
	return v, true, nil
}

// VaultPut validates and stages a vault record.
func (t *Txn) VaultPut(v *vault.Vault) error {
	if err := v.Validate(); err != nil {
		return err
	}
	encoded, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return t.set(kvKey(vaultRecordKey(v.ID())), encoded, false)
}

// Dirty reports whether the transaction has staged writes.
func (t *Txn) Dirty() bool { return len(t.writes) > 0 }

// Commit verifies that nothing the transaction read has changed and writes the
// staged operations as one atomic batch. The transaction is closed afterwards
// regardless of the outcome.
func (t *Txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true
	if len(t.writes) == 0 {
		return nil
	}
	t.m.commitMu.Lock()
	defer t.m.commitMu.Unlock()
	for k, obs := range t.reads {
		current, err := t.m.db.Get([]byte(k))
		found := true
		if errors.Is(err, storage.ErrNotFound) {
			found, err = false, nil
		}
		if err != nil {
			return err
		}
		if found != obs.found || !bytes.Equal(current, obs.value) {
			return ErrTxnConflict
		}
	}
	batch := storage.NewBatch()
	for _, k := range t.order {
		w := t.writes[k]
		if w.delete {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), w.value)
	}
	return t.m.db.Write(batch)
}

// Discard drops every staged write.
func (t *Txn) Discard() {
	t.closed = true
	t.reads = nil
	t.writes = nil
	t.order = nil
}
