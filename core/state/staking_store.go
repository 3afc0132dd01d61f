package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"arkenstone/native/staking"
	"arkenstone/storage"
)

// storedPosition is the RLP layout of a staking position.
type storedPosition struct {
	Principal  *big.Int
	Checkpoint uint64
}

// StakingStore persists ledger positions, totals and rates in a key-value
// database. Every changeset is written as one atomic batch.
type StakingStore struct {
	db storage.Database
}

var _ staking.Store = (*StakingStore)(nil)

// NewStakingStore binds the store to db.
func NewStakingStore(db storage.Database) *StakingStore {
	return &StakingStore{db: db}
}

func positionKey(pool staking.PoolID, user common.Address) []byte {
	return joinKey(stakingPositionPrefix, []byte(pool), user.Bytes())
}

func positionPoolPrefix(pool staking.PoolID) []byte {
	return append(joinKey(stakingPositionPrefix, []byte(pool)), '/')
}

func totalKey(pool staking.PoolID) []byte {
	return joinKey(stakingTotalPrefix, []byte(pool))
}

func rateKey(pool staking.PoolID) []byte {
	return joinKey(stakingRatePrefix, []byte(pool))
}

// Load reads every persisted position, total and rate.
func (s *StakingStore) Load() (*staking.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("state: staking store not initialised")
	}
	snap := &staking.Snapshot{
		Positions: make(map[staking.PoolID]map[common.Address]staking.Position),
		Totals:    make(map[staking.PoolID]*uint256.Int),
		Rates:     make(map[staking.PoolID]uint64),
	}
	for _, pool := range staking.Pools {
		prefix := positionPoolPrefix(pool)
		positions := make(map[common.Address]staking.Position)
		var iterErr error
		err := s.db.Iterate(prefix, func(key, value []byte) bool {
			raw := key[len(prefix):]
			if len(raw) != common.AddressLength {
				iterErr = fmt.Errorf("state: malformed position key %q", key)
				return false
			}
			pos, err := decodePosition(value)
			if err != nil {
				iterErr = err
				return false
			}
			positions[common.BytesToAddress(raw)] = pos
			return true
		})
		if err != nil {
			return nil, err
		}
		if iterErr != nil {
			return nil, iterErr
		}
		if len(positions) > 0 {
			snap.Positions[pool] = positions
		}

		total := new(big.Int)
		ok, err := kvGet(s.db, totalKey(pool), total)
		if err != nil {
			return nil, err
		}
		if ok {
			value, overflow := uint256.FromBig(total)
			if overflow {
				return nil, fmt.Errorf("state: %s total overflows", pool)
			}
			snap.Totals[pool] = value
		}

		var bps uint64
		ok, err = kvGet(s.db, rateKey(pool), &bps)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Rates[pool] = bps
		}
	}
	return snap, nil
}

// Commit writes the changeset atomically.
func (s *StakingStore) Commit(cs staking.Changeset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: staking store not initialised")
	}
	batch := storage.NewBatch()
	for _, change := range cs.Positions {
		key := positionKey(change.Pool, change.User)
		if change.Deleted || change.Position.IsEmpty() {
			batch.Delete(key)
			continue
		}
		record := storedPosition{
			Principal:  change.Position.Principal.ToBig(),
			Checkpoint: change.Position.Checkpoint,
		}
		if err := kvPut(batch, key, &record); err != nil {
			return err
		}
	}
	for pool, total := range cs.Totals {
		if total == nil {
			total = new(uint256.Int)
		}
		if err := kvPut(batch, totalKey(pool), total.ToBig()); err != nil {
			return err
		}
	}
	for pool, bps := range cs.Rates {
		if err := kvPut(batch, rateKey(pool), bps); err != nil {
			return err
		}
	}
	return s.db.Write(batch)
}

func decodePosition(data []byte) (staking.Position, error) {
	var record storedPosition
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return staking.Position{}, err
	}
	principal := new(uint256.Int)
	if record.Principal != nil {
		value, overflow := uint256.FromBig(record.Principal)
		if overflow {
			return staking.Position{}, fmt.Errorf("state: position principal overflows")
		}
		principal = value
	}
	return staking.Position{Principal: principal, Checkpoint: record.Checkpoint}, nil
}
