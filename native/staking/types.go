package staking

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID names one of the two isolated staking pools.
type PoolID string

const (
	// PoolBase holds the base asset.
	PoolBase PoolID = "base"
	// PoolReward holds the reward token itself.
	PoolReward PoolID = "reward"
)

// Pools lists the pool identifiers in their canonical order.
var Pools = []PoolID{PoolBase, PoolReward}

// ParsePoolID normalises and validates a pool identifier.
func ParsePoolID(value string) (PoolID, error) {
	id := PoolID(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Pools {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPool, value)
}

func (p PoolID) String() string { return string(p) }

// Position is the stake a single account holds in a pool. A zero principal
// means the position is logically absent.
type Position struct {
	Principal  *uint256.Int
	Checkpoint uint64
}

// Clone returns a deep copy of the position with a non-nil principal.
func (p Position) Clone() Position {
	clone := Position{Checkpoint: p.Checkpoint, Principal: new(uint256.Int)}
	if p.Principal != nil {
		clone.Principal.Set(p.Principal)
	}
	return clone
}

// IsEmpty reports whether the position carries no principal.
func (p Position) IsEmpty() bool {
	return p.Principal == nil || p.Principal.IsZero()
}

// PositionView is the read model returned by position queries.
type PositionView struct {
	Pool       PoolID
	User       common.Address
	Principal  *uint256.Int
	Pending    *uint256.Int
	Checkpoint uint64
}

// Receipt summarises a committed deposit, withdrawal or claim.
type Receipt struct {
	Pool      PoolID
	User      common.Address
	Amount    *uint256.Int
	Reward    *uint256.Int
	Principal *uint256.Int
	Timestamp uint64
}

// RateChange reports the outcome of an owner rate update.
type RateChange struct {
	Pool      PoolID
	OldBps    uint64
	NewBps    uint64
	Timestamp uint64
}

// TVL carries the total principal locked in each pool.
type TVL struct {
	Base   *uint256.Int
	Reward *uint256.Int
}
