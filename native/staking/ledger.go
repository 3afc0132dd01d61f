package staking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
	"arkenstone/observability/metrics"
)

// RewardToken is the mint authority the ledger uses to pay rewards. Burn is
// only used to compensate a mint whose operation later failed.
//
// Implementations that call back into the ledger must pass the ctx they
// were given, or a context derived from it. The ledger recognises reentry
// by that context: a callback made with an unrelated context waits on the
// ledger lock held by the operation that invoked it and never returns.
type RewardToken interface {
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, caller, from common.Address, amount *uint256.Int) error
}

// Config carries the immutable ledger parameters.
type Config struct {
	// Owner is the only account permitted to change rates.
	Owner common.Address
	// Address is the ledger's own identity. It holds custody of staked
	// principal and must be the reward token's minter.
	Address       common.Address
	Bounds        RateBounds
	BaseRateBps   uint64
	RewardRateBps uint64
}

type operation string

const (
	opDeposit  operation = "deposit"
	opWithdraw operation = "withdraw"
	opClaim    operation = "claim"
	opSetRate  operation = "set_rate"
)

// Ledger is the dual-pool staking engine. Mutations are serialised and
// settle the caller's accrued reward before touching principal.
//
// Collaborators run while the write lock is held. Calls they make back into
// the ledger with the context they received are treated as reentrant:
// reads observe the finalised bookkeeping, mutations fail with
// ErrReentrantCall.
type Ledger struct {
	mu sync.RWMutex

	owner   common.Address
	address common.Address
	token   RewardToken
	pools   map[PoolID]*Pool
	rates   *RateConfig

	store     Store
	emitter   events.Emitter
	clock     *monotonic
	logger    *slog.Logger
	telemetry *metrics.StakingMetrics
}

// Option customises optional ledger collaborators.
type Option func(*Ledger)

// WithStore persists the ledger through store and restores its snapshot.
func WithStore(store Store) Option {
	return func(l *Ledger) {
		if store != nil {
			l.store = store
		}
	}
}

// WithEmitter routes committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) {
		if emitter != nil {
			l.emitter = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics overrides the metrics registry. Passing nil disables metrics.
func WithMetrics(m *metrics.StakingMetrics) Option {
	return func(l *Ledger) {
		l.telemetry = m
	}
}

// NewLedger wires the ledger to its reward token and the custody of each
// pool, then restores any persisted state.
func NewLedger(cfg Config, token RewardToken, base, reward Custody, opts ...Option) (*Ledger, error) {
	if cfg.Owner == (common.Address{}) || cfg.Address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if token == nil {
		return nil, fmt.Errorf("%w: reward token not configured", ErrZeroAddress)
	}
	if base == nil || reward == nil {
		return nil, errors.New("staking: pool custody not configured")
	}
	bounds := cfg.Bounds
	if bounds == (RateBounds{}) {
		bounds = DefaultRateBounds()
	}
	rates, err := NewRateConfig(bounds, map[PoolID]uint64{
		PoolBase:   cfg.BaseRateBps,
		PoolReward: cfg.RewardRateBps,
	})
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		owner:   cfg.Owner,
		address: cfg.Address,
		token:   token,
		pools: map[PoolID]*Pool{
			PoolBase:   newPool(PoolBase, base),
			PoolReward: newPool(PoolReward, reward),
		},
		rates:     rates,
		store:     NewMemoryStore(),
		emitter:   events.NoopEmitter{},
		clock:     &monotonic{clock: SystemClock{}},
		logger:    slog.Default(),
		telemetry: metrics.Staking(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if err := l.restore(); err != nil {
		return nil, err
	}
	for _, id := range Pools {
		bps, _ := l.rates.Rate(id)
		l.telemetry.SetRate(id.String(), bps)
		l.telemetry.SetTVL(id.String(), l.pools[id].total.ToBig())
	}
	return l, nil
}

func (l *Ledger) restore() error {
	snap, err := l.store.Load()
	if err != nil {
		return fmt.Errorf("staking: load state: %w", err)
	}
	if snap == nil {
		return nil
	}
	for id, positions := range snap.Positions {
		pool, ok := l.pools[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPool, id)
		}
		sum := new(uint256.Int)
		for user, pos := range positions {
			if pos.IsEmpty() {
				continue
			}
			if _, overflow := sum.AddOverflow(sum, pos.Principal); overflow {
				return fmt.Errorf("%w: %s principal overflows", ErrCorruptState, id)
			}
			pool.positions[user] = pos.Clone()
			l.clock.observe(pos.Checkpoint)
		}
		pool.total = sum
	}
	for id, total := range snap.Totals {
		pool, ok := l.pools[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPool, id)
		}
		if total != nil && !total.Eq(pool.total) {
			return fmt.Errorf("%w: %s total %s does not match positions %s", ErrCorruptState, id, total.Dec(), pool.total.Dec())
		}
	}
	for id, bps := range snap.Rates {
		if _, err := l.rates.Rate(id); err != nil {
			return err
		}
		if !l.rates.Bounds().Contains(bps) {
			return fmt.Errorf("%w: persisted %s rate %d", ErrRateOutOfRange, id, bps)
		}
		l.rates.restore(id, bps)
	}
	return nil
}

type callKey struct{}

// withinCall reports whether ctx originates from a collaborator invoked by
// this ledger while it holds the write lock.
func (l *Ledger) withinCall(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(callKey{}).(*Ledger)
	return owner == l
}

func (l *Ledger) rlock(ctx context.Context) func() {
	if l.withinCall(ctx) {
		return func() {}
	}
	l.mu.RLock()
	return l.mu.RUnlock
}

// Owner returns the rate administrator.
func (l *Ledger) Owner() common.Address { return l.owner }

// Address returns the ledger's custody and minter identity.
func (l *Ledger) Address() common.Address { return l.address }

// RateBounds returns the immutable inclusive rate bounds.
func (l *Ledger) RateBounds() RateBounds { return l.rates.Bounds() }

// Deposit settles the user's reward in pool and adds amount to their
// principal.
func (l *Ledger) Deposit(ctx context.Context, pool PoolID, user common.Address, amount *uint256.Int) (Receipt, error) {
	return l.execute(ctx, opDeposit, pool, user, func(p *Pool, rate, now uint64) (*mutation, error) {
		return p.planDeposit(user, amount, rate, now)
	})
}

// Withdraw settles the user's reward in pool and returns amount of principal.
func (l *Ledger) Withdraw(ctx context.Context, pool PoolID, user common.Address, amount *uint256.Int) (Receipt, error) {
	return l.execute(ctx, opWithdraw, pool, user, func(p *Pool, rate, now uint64) (*mutation, error) {
		return p.planWithdraw(user, amount, rate, now)
	})
}

// Claim pays the user's accrued reward in pool without touching principal.
func (l *Ledger) Claim(ctx context.Context, pool PoolID, user common.Address) (Receipt, error) {
	return l.execute(ctx, opClaim, pool, user, func(p *Pool, rate, now uint64) (*mutation, error) {
		return p.planClaim(user, rate, now)
	})
}

type planFunc func(p *Pool, rateBps, now uint64) (*mutation, error)

func (l *Ledger) execute(ctx context.Context, op operation, id PoolID, user common.Address, plan planFunc) (Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.withinCall(ctx) {
		return Receipt{}, ErrReentrantCall
	}
	if user == (common.Address{}) {
		return Receipt{}, ErrZeroAddress
	}
	start := time.Now()
	l.mu.Lock()
	receipt, err := l.executeLocked(ctx, op, id, user, plan)
	l.mu.Unlock()
	l.telemetry.ObserveOperation(string(op), id.String(), time.Since(start), err)
	return receipt, err
}

func (l *Ledger) executeLocked(ctx context.Context, op operation, id PoolID, user common.Address, plan planFunc) (Receipt, error) {
	pool, ok := l.pools[id]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	rate, err := l.rates.Rate(id)
	if err != nil {
		return Receipt{}, err
	}
	m, err := plan(pool, rate, l.clock.now())
	if err != nil {
		return Receipt{}, err
	}

	pool.apply(m)
	if err := l.store.Commit(forward(m)); err != nil {
		pool.revert(m)
		return Receipt{}, fmt.Errorf("staking: persist %s: %w", op, err)
	}

	callCtx := context.WithValue(ctx, callKey{}, l)
	if effErr, compErr := runEffects(callCtx, l.effectsFor(op, pool, m)); effErr != nil {
		pool.revert(m)
		if compErr != nil {
			l.telemetry.ObserveCompensation(string(op), compErr)
			l.logger.Error("staking compensation failed",
				slog.String("operation", string(op)),
				slog.String("pool", id.String()),
				slog.String("user", user.Hex()),
				slog.Any("error", compErr))
		} else {
			l.telemetry.ObserveCompensation(string(op), nil)
		}
		if perr := l.store.Commit(backward(m)); perr != nil {
			l.logger.Error("staking rollback persist failed",
				slog.String("operation", string(op)),
				slog.String("pool", id.String()),
				slog.Any("error", perr))
			return Receipt{}, errors.Join(effErr, compErr, perr)
		}
		return Receipt{}, errors.Join(effErr, compErr)
	}

	l.publish(op, m)
	l.telemetry.AddRewardsMinted(id.String(), m.reward.ToBig())
	l.telemetry.SetTVL(id.String(), m.totalAfter.ToBig())
	l.logger.Info("staking operation committed",
		slog.String("operation", string(op)),
		slog.String("pool", id.String()),
		slog.String("user", user.Hex()),
		slog.String("amount", m.amount.Dec()),
		slog.String("reward", m.reward.Dec()),
		slog.Uint64("timestamp", m.now))
	return Receipt{
		Pool:      id,
		User:      user,
		Amount:    new(uint256.Int).Set(m.amount),
		Reward:    new(uint256.Int).Set(m.reward),
		Principal: new(uint256.Int).Set(m.after.Principal),
		Timestamp: m.now,
	}, nil
}

func (l *Ledger) effectsFor(op operation, pool *Pool, m *mutation) []effect {
	var effects []effect
	if !m.reward.IsZero() {
		reward := new(uint256.Int).Set(m.reward)
		effects = append(effects, effect{
			name: "mint reward",
			apply: func(ctx context.Context) error {
				return l.token.Mint(ctx, l.address, m.user, reward)
			},
			compensate: func(ctx context.Context) error {
				return l.token.Burn(ctx, l.address, m.user, reward)
			},
		})
	}
	amount := new(uint256.Int).Set(m.amount)
	switch op {
	case opDeposit:
		effects = append(effects, effect{
			name:       "accept deposit",
			apply:      func(ctx context.Context) error { return pool.custody.Accept(ctx, m.user, amount) },
			compensate: func(ctx context.Context) error { return pool.custody.Release(ctx, m.user, amount) },
		})
	case opWithdraw:
		effects = append(effects, effect{
			name:       "release withdrawal",
			apply:      func(ctx context.Context) error { return pool.custody.Release(ctx, m.user, amount) },
			compensate: func(ctx context.Context) error { return pool.custody.Accept(ctx, m.user, amount) },
		})
	}
	return effects
}

func (l *Ledger) publish(op operation, m *mutation) {
	if !m.reward.IsZero() {
		l.emitter.Emit(events.StakingRewardsClaimed{
			Pool:      m.pool.String(),
			Account:   m.user,
			Amount:    new(uint256.Int).Set(m.reward),
			RateBps:   m.rateBps,
			Elapsed:   m.elapsed,
			Timestamp: m.now,
		})
	}
	switch op {
	case opDeposit:
		l.emitter.Emit(events.StakingDeposited{
			Pool:      m.pool.String(),
			Account:   m.user,
			Amount:    new(uint256.Int).Set(m.amount),
			Principal: new(uint256.Int).Set(m.after.Principal),
			Timestamp: m.now,
		})
	case opWithdraw:
		l.emitter.Emit(events.StakingWithdrawn{
			Pool:      m.pool.String(),
			Account:   m.user,
			Amount:    new(uint256.Int).Set(m.amount),
			Principal: new(uint256.Int).Set(m.after.Principal),
			Timestamp: m.now,
		})
	}
}

func forward(m *mutation) Changeset {
	return Changeset{
		Positions: []PositionChange{{
			Pool:     m.pool,
			User:     m.user,
			Position: m.after.Clone(),
			Deleted:  m.after.IsEmpty(),
		}},
		Totals: map[PoolID]*uint256.Int{m.pool: new(uint256.Int).Set(m.totalAfter)},
	}
}

func backward(m *mutation) Changeset {
	return Changeset{
		Positions: []PositionChange{{
			Pool:     m.pool,
			User:     m.user,
			Position: m.before.Clone(),
			Deleted:  !m.existed || m.before.IsEmpty(),
		}},
		Totals: map[PoolID]*uint256.Int{m.pool: new(uint256.Int).Set(m.totalBefore)},
	}
}

// SetRate replaces the annual rate of pool. Only the owner may call it and
// the new rate must lie within the configured bounds. Existing positions
// are not settled; their pending reward is recomputed at the new rate.
func (l *Ledger) SetRate(ctx context.Context, caller common.Address, id PoolID, bps uint64) (RateChange, error) {
	if l.withinCall(ctx) {
		return RateChange{}, ErrReentrantCall
	}
	start := time.Now()
	l.mu.Lock()
	change, err := l.setRateLocked(caller, id, bps)
	l.mu.Unlock()
	l.telemetry.ObserveOperation(string(opSetRate), id.String(), time.Since(start), err)
	return change, err
}

func (l *Ledger) setRateLocked(caller common.Address, id PoolID, bps uint64) (RateChange, error) {
	if caller != l.owner {
		return RateChange{}, ErrNotOwner
	}
	old, err := l.rates.Set(id, bps)
	if err != nil {
		return RateChange{}, err
	}
	if err := l.store.Commit(Changeset{Rates: map[PoolID]uint64{id: bps}}); err != nil {
		l.rates.restore(id, old)
		return RateChange{}, fmt.Errorf("staking: persist rate: %w", err)
	}
	now := l.clock.now()
	l.emitter.Emit(events.StakingRateUpdated{
		Pool:      id.String(),
		Caller:    caller,
		OldBps:    old,
		NewBps:    bps,
		Timestamp: now,
	})
	l.telemetry.SetRate(id.String(), bps)
	l.logger.Info("staking rate updated",
		slog.String("pool", id.String()),
		slog.Uint64("old_bps", old),
		slog.Uint64("new_bps", bps))
	return RateChange{Pool: id, OldBps: old, NewBps: bps, Timestamp: now}, nil
}

// Rate returns the current annual rate of pool in basis points.
func (l *Ledger) Rate(ctx context.Context, id PoolID) (uint64, error) {
	defer l.rlock(ctx)()
	return l.rates.Rate(id)
}

// Position returns the user's principal, checkpoint and pending reward.
func (l *Ledger) Position(ctx context.Context, id PoolID, user common.Address) (PositionView, error) {
	defer l.rlock(ctx)()
	pool, ok := l.pools[id]
	if !ok {
		return PositionView{}, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	rate, err := l.rates.Rate(id)
	if err != nil {
		return PositionView{}, err
	}
	pos := pool.Position(user)
	pending, _, err := Settle(pos, rate, l.clock.now())
	if err != nil {
		return PositionView{}, err
	}
	return PositionView{
		Pool:       id,
		User:       user,
		Principal:  pos.Principal,
		Pending:    pending,
		Checkpoint: pos.Checkpoint,
	}, nil
}

// PendingReward returns the reward the user would receive if settled now.
func (l *Ledger) PendingReward(ctx context.Context, id PoolID, user common.Address) (*uint256.Int, error) {
	view, err := l.Position(ctx, id, user)
	if err != nil {
		return nil, err
	}
	return view.Pending, nil
}

// TVL returns the total principal held by each pool.
func (l *Ledger) TVL(ctx context.Context) TVL {
	defer l.rlock(ctx)()
	return TVL{
		Base:   l.pools[PoolBase].Total(),
		Reward: l.pools[PoolReward].Total(),
	}
}

// Stakers returns the number of accounts with a non-empty position in pool.
func (l *Ledger) Stakers(ctx context.Context, id PoolID) (int, error) {
	defer l.rlock(ctx)()
	pool, ok := l.pools[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	count := 0
	pool.Range(func(_ common.Address, pos Position) bool {
		if !pos.IsEmpty() {
			count++
		}
		return true
	})
	return count, nil
}
