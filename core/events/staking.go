package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/types"
)

const (
	// TypeStakingDeposited captures principal added to a pool.
	TypeStakingDeposited = "staking.deposited"
	// TypeStakingWithdrawn captures principal released from a pool.
	TypeStakingWithdrawn = "staking.withdrawn"
	// TypeStakingRewardsClaimed is emitted whenever settled rewards are minted to an account.
	TypeStakingRewardsClaimed = "staking.rewardsClaimed"
	// TypeStakingRateUpdated records an owner rate change for a pool.
	TypeStakingRateUpdated = "staking.rateUpdated"
)

// StakingDeposited captures a successful deposit.
type StakingDeposited struct {
	Pool      string
	Account   common.Address
	Amount    *uint256.Int
	Principal *uint256.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakingDeposited) EventType() string { return TypeStakingDeposited }

// Event converts the structured payload into a broadcastable event.
func (e StakingDeposited) Event() *types.Event {
	attrs := map[string]string{
		"pool":   normalizePool(e.Pool),
		"addr":   formatAddress(e.Account),
		"amount": formatAmount(e.Amount),
	}
	if e.Principal != nil {
		attrs["principal"] = formatAmount(e.Principal)
	}
	if e.Timestamp > 0 {
		attrs["timestamp"] = formatUint(e.Timestamp)
	}
	return &types.Event{Type: TypeStakingDeposited, Attributes: attrs}
}

// StakingWithdrawn captures a successful partial or full withdrawal.
type StakingWithdrawn struct {
	Pool      string
	Account   common.Address
	Amount    *uint256.Int
	Principal *uint256.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakingWithdrawn) EventType() string { return TypeStakingWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakingWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"pool":   normalizePool(e.Pool),
		"addr":   formatAddress(e.Account),
		"amount": formatAmount(e.Amount),
	}
	if e.Principal != nil {
		attrs["principal"] = formatAmount(e.Principal)
	}
	if e.Timestamp > 0 {
		attrs["timestamp"] = formatUint(e.Timestamp)
	}
	return &types.Event{Type: TypeStakingWithdrawn, Attributes: attrs}
}

// StakingRewardsClaimed captures the reward minted to an account during settlement.
type StakingRewardsClaimed struct {
	Pool      string
	Account   common.Address
	Amount    *uint256.Int
	RateBps   uint64
	Elapsed   uint64
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakingRewardsClaimed) EventType() string { return TypeStakingRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e StakingRewardsClaimed) Event() *types.Event {
	attrs := map[string]string{
		"pool":   normalizePool(e.Pool),
		"addr":   formatAddress(e.Account),
		"amount": formatAmount(e.Amount),
	}
	if e.RateBps > 0 {
		attrs["rateBps"] = formatUint(e.RateBps)
	}
	if e.Elapsed > 0 {
		attrs["elapsed"] = formatUint(e.Elapsed)
	}
	if e.Timestamp > 0 {
		attrs["timestamp"] = formatUint(e.Timestamp)
	}
	return &types.Event{Type: TypeStakingRewardsClaimed, Attributes: attrs}
}

// StakingRateUpdated records the previous and new annual rate of a pool.
type StakingRateUpdated struct {
	Pool      string
	Caller    common.Address
	OldBps    uint64
	NewBps    uint64
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakingRateUpdated) EventType() string { return TypeStakingRateUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakingRateUpdated) Event() *types.Event {
	attrs := map[string]string{
		"pool":   normalizePool(e.Pool),
		"oldBps": formatUint(e.OldBps),
		"newBps": formatUint(e.NewBps),
	}
	if !zeroAddress(e.Caller) {
		attrs["caller"] = formatAddress(e.Caller)
	}
	if e.Timestamp > 0 {
		attrs["timestamp"] = formatUint(e.Timestamp)
	}
	return &types.Event{Type: TypeStakingRateUpdated, Attributes: attrs}
}
