package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
	"arkenstone/core/state"
	"arkenstone/observability/metrics"
)

const (
	Name     = "Arkenstone"
	Symbol   = "ARKN"
	Decimals = 18
)

// Store persists balances, supply and the minting authority.
type Store interface {
	Balance(addr common.Address) (*uint256.Int, error)
	Supply() (*uint256.Int, error)
	Apply(update state.BalanceUpdate) error
	Minter() (common.Address, bool, error)
	SetMinter(addr common.Address) error
	Marked(label string) (bool, error)
}

// Token is the fungible reward asset. Supply starts at zero and only the
// single minter may create or destroy units.
type Token struct {
	mu        sync.Mutex
	minter    common.Address
	store     Store
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.StakingMetrics
}

// Option customises token collaborators.
type Option func(*Token)

func WithEmitter(emitter events.Emitter) Option {
	return func(t *Token) {
		if emitter != nil {
			t.emitter = emitter
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Token) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StakingMetrics) Option {
	return func(t *Token) { t.telemetry = m }
}

// New deploys the token. The deployer becomes the initial minter unless the
// store already records one.
func New(deployer common.Address, store Store, opts ...Option) (*Token, error) {
	if deployer == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if store == nil {
		return nil, fmt.Errorf("token: store not configured")
	}
	t := &Token{
		minter:    deployer,
		store:     store,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		telemetry: metrics.Staking(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	minter, ok, err := store.Minter()
	if err != nil {
		return nil, fmt.Errorf("token: load minter: %w", err)
	}
	if ok {
		t.minter = minter
	} else if err := store.SetMinter(deployer); err != nil {
		return nil, fmt.Errorf("token: persist minter: %w", err)
	}
	return t, nil
}

// Minter returns the current minting authority.
func (t *Token) Minter() common.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minter
}

// SetMinter hands the minting authority to minter. Only the current minter
// may call.
func (t *Token) SetMinter(_ context.Context, caller, minter common.Address) error {
	if minter == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.minter {
		return ErrNotMinter
	}
	if err := t.store.SetMinter(minter); err != nil {
		return err
	}
	old := t.minter
	t.minter = minter
	t.emitter.Emit(events.TokenMinterUpdated{Symbol: Symbol, OldMinter: old, NewMinter: minter})
	t.logger.Info("token minter updated",
		slog.String("old", old.Hex()),
		slog.String("new", minter.Hex()))
	return nil
}

// Mint creates amount units for to.
func (t *Token) Mint(_ context.Context, caller, to common.Address, amount *uint256.Int) error {
	_, err := t.mint(caller, to, amount, "")
	return err
}

// MintOnce is Mint guarded by marker: the mint and the marker are stored
// together, and a marker already present turns the call into a no-op. It
// reports whether units were minted.
func (t *Token) MintOnce(_ context.Context, caller, to common.Address, amount *uint256.Int, marker string) (bool, error) {
	if marker == "" {
		return false, fmt.Errorf("token: empty mint marker")
	}
	return t.mint(caller, to, amount, marker)
}

func (t *Token) mint(caller, to common.Address, amount *uint256.Int, marker string) (bool, error) {
	if to == (common.Address{}) {
		return false, ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return false, ErrZeroAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.minter {
		return false, ErrNotMinter
	}
	update := state.BalanceUpdate{}
	if marker != "" {
		done, err := t.store.Marked(marker)
		if err != nil || done {
			return false, err
		}
		update.Markers = []string{marker}
	}
	balance, err := t.store.Balance(to)
	if err != nil {
		return false, err
	}
	supply, err := t.store.Supply()
	if err != nil {
		return false, err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return false, ErrSupplyOverflow
	}
	update.Balances = map[common.Address]*uint256.Int{to: new(uint256.Int).Add(balance, amount)}
	update.Supply = nextSupply
	if err := t.store.Apply(update); err != nil {
		return false, err
	}
	t.emitter.Emit(events.TokenTransfer{Symbol: Symbol, From: common.Address{}, To: to, Amount: new(uint256.Int).Set(amount)})
	t.telemetry.SetTokenSupply(Symbol, nextSupply.ToBig())
	return true, nil
}

// Burn destroys amount units held by from.
func (t *Token) Burn(_ context.Context, caller, from common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.minter {
		return ErrNotMinter
	}
	balance, err := t.store.Balance(from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	supply, err := t.store.Supply()
	if err != nil {
		return err
	}
	nextSupply := new(uint256.Int).Sub(supply, amount)
	if err := t.store.Apply(state.BalanceUpdate{
		Balances: map[common.Address]*uint256.Int{from: new(uint256.Int).Sub(balance, amount)},
		Supply:   nextSupply,
	}); err != nil {
		return err
	}
	t.emitter.Emit(events.TokenTransfer{Symbol: Symbol, From: from, To: common.Address{}, Amount: new(uint256.Int).Set(amount)})
	t.telemetry.SetTokenSupply(Symbol, nextSupply.ToBig())
	return nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return transfer(t.store, t.emitter, Symbol, from, to, amount)
}

// BalanceOf returns the balance held by addr.
func (t *Token) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return t.store.Balance(addr)
}

// TotalSupply returns the circulating supply.
func (t *Token) TotalSupply() (*uint256.Int, error) {
	return t.store.Supply()
}

type balanceStore interface {
	Balance(addr common.Address) (*uint256.Int, error)
	Apply(update state.BalanceUpdate) error
}

func transfer(store balanceStore, emitter events.Emitter, symbol string, from, to common.Address, amount *uint256.Int) error {
	fromBalance, err := store.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := store.Balance(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	update := state.BalanceUpdate{Balances: map[common.Address]*uint256.Int{
		from: new(uint256.Int).Sub(fromBalance, amount),
		to:   credited,
	}}
	if err := store.Apply(update); err != nil {
		return err
	}
	emitter.Emit(events.TokenTransfer{Symbol: symbol, From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}
