package staking

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Custody moves a pool's underlying asset between an account and the
// ledger. The base pool uses the bank, the reward pool uses the token.
// Like RewardToken, an implementation that calls back into the ledger must
// do so with the ctx it was given or one derived from it.
type Custody interface {
	// Accept pulls amount from the account into ledger custody.
	Accept(ctx context.Context, from common.Address, amount *uint256.Int) error
	// Release pays amount out of ledger custody to the account.
	Release(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Pool tracks the positions and total principal of a single asset.
type Pool struct {
	id        PoolID
	custody   Custody
	positions map[common.Address]Position
	total     *uint256.Int
}

func newPool(id PoolID, custody Custody) *Pool {
	return &Pool{
		id:        id,
		custody:   custody,
		positions: make(map[common.Address]Position),
		total:     new(uint256.Int),
	}
}

// ID returns the pool identifier.
func (p *Pool) ID() PoolID { return p.id }

// Total returns a copy of the pool's total principal.
func (p *Pool) Total() *uint256.Int { return new(uint256.Int).Set(p.total) }

// Position returns a copy of the user's position. Absent users yield an
// empty position.
func (p *Pool) Position(user common.Address) Position {
	pos, ok := p.positions[user]
	if !ok {
		return Position{Principal: new(uint256.Int)}
	}
	return pos.Clone()
}

// Range calls fn for every stored position until fn returns false.
func (p *Pool) Range(fn func(user common.Address, pos Position) bool) {
	for user, pos := range p.positions {
		if !fn(user, pos.Clone()) {
			return
		}
	}
}

// mutation is a planned change to a single position. It carries both sides
// so the change can be reverted if an external effect fails.
type mutation struct {
	pool        PoolID
	user        common.Address
	amount      *uint256.Int
	reward      *uint256.Int
	rateBps     uint64
	elapsed     uint64
	now         uint64
	existed     bool
	before      Position
	after       Position
	totalBefore *uint256.Int
	totalAfter  *uint256.Int
}

func (p *Pool) settle(user common.Address, rateBps, now uint64) (*mutation, error) {
	before, existed := p.positions[user]
	if !existed {
		before = Position{Principal: new(uint256.Int)}
	}
	before = before.Clone()
	reward, settled, err := Settle(before, rateBps, now)
	if err != nil {
		return nil, err
	}
	return &mutation{
		pool:        p.id,
		user:        user,
		amount:      new(uint256.Int),
		reward:      reward,
		rateBps:     rateBps,
		elapsed:     now - before.Checkpoint,
		now:         now,
		existed:     existed,
		before:      before,
		after:       settled,
		totalBefore: p.Total(),
		totalAfter:  p.Total(),
	}, nil
}

func (p *Pool) planDeposit(user common.Address, amount *uint256.Int, rateBps, now uint64) (*mutation, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	m, err := p.settle(user, rateBps, now)
	if err != nil {
		return nil, err
	}
	principal, overflow := new(uint256.Int).AddOverflow(m.after.Principal, amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	total, overflow := new(uint256.Int).AddOverflow(m.totalBefore, amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	m.amount = new(uint256.Int).Set(amount)
	m.after.Principal = principal
	m.totalAfter = total
	return m, nil
}

func (p *Pool) planWithdraw(user common.Address, amount *uint256.Int, rateBps, now uint64) (*mutation, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if p.Position(user).Principal.Lt(amount) {
		return nil, ErrInsufficientStake
	}
	m, err := p.settle(user, rateBps, now)
	if err != nil {
		return nil, err
	}
	m.amount = new(uint256.Int).Set(amount)
	m.after.Principal = new(uint256.Int).Sub(m.after.Principal, amount)
	m.totalAfter = new(uint256.Int).Sub(m.totalBefore, amount)
	return m, nil
}

func (p *Pool) planClaim(user common.Address, rateBps, now uint64) (*mutation, error) {
	m, err := p.settle(user, rateBps, now)
	if err != nil {
		return nil, err
	}
	if m.reward.IsZero() {
		return nil, ErrNoRewards
	}
	return m, nil
}

func (p *Pool) apply(m *mutation) {
	p.positions[m.user] = m.after.Clone()
	p.total = new(uint256.Int).Set(m.totalAfter)
}

func (p *Pool) revert(m *mutation) {
	if m.existed {
		p.positions[m.user] = m.before.Clone()
	} else {
		delete(p.positions, m.user)
	}
	p.total = new(uint256.Int).Set(m.totalBefore)
}
