package staking

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Snapshot is the persisted ledger state loaded on start-up.
type Snapshot struct {
	Positions map[PoolID]map[common.Address]Position
	Totals    map[PoolID]*uint256.Int
	Rates     map[PoolID]uint64
}

// PositionChange updates or removes a single stored position.
type PositionChange struct {
	Pool     PoolID
	User     common.Address
	Position Position
	Deleted  bool
}

// Changeset is the unit of persistence written after each mutation.
type Changeset struct {
	Positions []PositionChange
	Totals    map[PoolID]*uint256.Int
	Rates     map[PoolID]uint64
}

// Store persists ledger state. Commit must apply a changeset atomically.
type Store interface {
	Load() (*Snapshot, error)
	Commit(Changeset) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[PoolID]map[common.Address]Position
	totals    map[PoolID]*uint256.Int
	rates     map[PoolID]uint64
	commits   int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[PoolID]map[common.Address]Position),
		totals:    make(map[PoolID]*uint256.Int),
		rates:     make(map[PoolID]uint64),
	}
}

func (s *MemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &Snapshot{
		Positions: make(map[PoolID]map[common.Address]Position, len(s.positions)),
		Totals:    make(map[PoolID]*uint256.Int, len(s.totals)),
		Rates:     make(map[PoolID]uint64, len(s.rates)),
	}
	for pool, positions := range s.positions {
		copied := make(map[common.Address]Position, len(positions))
		for user, pos := range positions {
			copied[user] = pos.Clone()
		}
		snap.Positions[pool] = copied
	}
	for pool, total := range s.totals {
		snap.Totals[pool] = new(uint256.Int).Set(total)
	}
	for pool, bps := range s.rates {
		snap.Rates[pool] = bps
	}
	return snap, nil
}

func (s *MemoryStore) Commit(cs Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, change := range cs.Positions {
		positions := s.positions[change.Pool]
		if positions == nil {
			positions = make(map[common.Address]Position)
			s.positions[change.Pool] = positions
		}
		if change.Deleted {
			delete(positions, change.User)
			continue
		}
		positions[change.User] = change.Position.Clone()
	}
	for pool, total := range cs.Totals {
		s.totals[pool] = new(uint256.Int).Set(total)
	}
	for pool, bps := range cs.Rates {
		s.rates[pool] = bps
	}
	s.commits++
	return nil
}

// Commits returns the number of changesets applied.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
