package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/storage"
)

// BalanceUpdate is an atomic set of balance and supply changes. A nil
// Supply leaves the stored supply untouched. Markers are recorded in the
// same batch so a caller can tell later that the update landed.
type BalanceUpdate struct {
	Balances map[common.Address]*uint256.Int
	Supply   *uint256.Int
	Markers  []string
}

// Balances persists per-account balances of a single asset under its own
// namespace.
type Balances struct {
	mu        sync.RWMutex
	db        storage.Database
	namespace string
}

// NewBalances scopes a balance table to namespace, e.g. the token symbol.
func NewBalances(db storage.Database, namespace string) *Balances {
	return &Balances{db: db, namespace: namespace}
}

func (b *Balances) balanceKey(addr common.Address) []byte {
	return joinKey([]byte(fmt.Sprintf(balancePrefixFormat, b.namespace)), addr.Bytes())
}

func (b *Balances) supplyKey() []byte {
	return []byte(fmt.Sprintf(supplyKeyFormat, b.namespace))
}

func (b *Balances) minterKey() []byte {
	return []byte(fmt.Sprintf(minterKeyFormat, b.namespace))
}

func (b *Balances) markerKey(label string) []byte {
	return []byte(fmt.Sprintf(markerKeyFormat, b.namespace, label))
}

// Marked reports whether an update carrying label was applied.
func (b *Balances) Marked(label string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, err := b.db.Get(b.markerKey(label))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Balance returns the balance of addr, zero when absent.
func (b *Balances) Balance(addr common.Address) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.readAmount(b.balanceKey(addr))
}

// Supply returns the tracked total supply.
func (b *Balances) Supply() (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.readAmount(b.supplyKey())
}

func (b *Balances) readAmount(key []byte) (*uint256.Int, error) {
	raw := new(big.Int)
	ok, err := kvGet(b.db, key, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("state: stored amount under %q overflows", key)
	}
	return value, nil
}

// Apply writes the update as a single batch. Zero balances are deleted.
func (b *Balances) Apply(update BalanceUpdate) error {
	batch := storage.NewBatch()
	for addr, amount := range update.Balances {
		key := b.balanceKey(addr)
		if amount == nil || amount.IsZero() {
			batch.Delete(key)
			continue
		}
		if err := kvPut(batch, key, amount.ToBig()); err != nil {
			return err
		}
	}
	if update.Supply != nil {
		if err := kvPut(batch, b.supplyKey(), update.Supply.ToBig()); err != nil {
			return err
		}
	}
	for _, label := range update.Markers {
		batch.Put(b.markerKey(label), []byte{1})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Write(batch)
}

// Minter returns the persisted minter and whether one has been recorded.
func (b *Balances) Minter() (common.Address, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var raw []byte
	ok, err := kvGet(b.db, b.minterKey(), &raw)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, false, fmt.Errorf("state: malformed minter record")
	}
	return common.BytesToAddress(raw), true, nil
}

// SetMinter records the minter address.
func (b *Balances) SetMinter(addr common.Address) error {
	batch := storage.NewBatch()
	if err := kvPut(batch, b.minterKey(), addr.Bytes()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Write(batch)
}

// Range visits every non-zero balance.
func (b *Balances) Range(fn func(addr common.Address, amount *uint256.Int) bool) error {
	prefix := []byte(fmt.Sprintf(balancePrefixFormat, b.namespace))
	b.mu.RLock()
	defer b.mu.RUnlock()
	var decodeErr error
	err := b.db.Iterate(prefix, func(key, value []byte) bool {
		raw := key[len(prefix):]
		if len(raw) != common.AddressLength {
			return true
		}
		amount := new(big.Int)
		if _, err := kvDecode(value, amount); err != nil {
			decodeErr = err
			return false
		}
		converted, overflow := uint256.FromBig(amount)
		if overflow {
			decodeErr = fmt.Errorf("state: balance for %x overflows", raw)
			return false
		}
		return fn(common.BytesToAddress(raw), converted)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
