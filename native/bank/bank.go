package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
	"arkenstone/core/state"
)

var (
	ErrZeroAddress         = errors.New("bank: zero address")
	ErrZeroAmount          = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
)

// Store persists base-asset balances.
type Store interface {
	Balance(addr common.Address) (*uint256.Int, error)
	Supply() (*uint256.Int, error)
	Apply(update state.BalanceUpdate) error
	Marked(label string) (bool, error)
}

// Bank moves the chain's base asset between accounts.
type Bank struct {
	mu      sync.Mutex
	symbol  string
	store   Store
	emitter events.Emitter
	logger  *slog.Logger
}

// New creates a bank for the asset identified by symbol.
func New(symbol string, store Store, emitter events.Emitter, logger *slog.Logger) (*Bank, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("bank: symbol required")
	}
	if store == nil {
		return nil, fmt.Errorf("bank: store not configured")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bank{symbol: symbol, store: store, emitter: emitter, logger: logger}, nil
}

// Symbol returns the asset symbol.
func (b *Bank) Symbol() string { return b.symbol }

// Credit issues new base asset to an account. It is used for genesis
// allocations only.
func (b *Bank) Credit(_ context.Context, to common.Address, amount *uint256.Int) error {
	_, err := b.credit(to, amount, "")
	return err
}

// CreditOnce is Credit guarded by marker: the credit and the marker are
// stored together, and a marker already present turns the call into a
// no-op. It reports whether the credit was applied.
func (b *Bank) CreditOnce(_ context.Context, to common.Address, amount *uint256.Int, marker string) (bool, error) {
	if marker == "" {
		return false, fmt.Errorf("bank: empty credit marker")
	}
	return b.credit(to, amount, marker)
}

func (b *Bank) credit(to common.Address, amount *uint256.Int, marker string) (bool, error) {
	if to == (common.Address{}) {
		return false, ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return false, ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	update := state.BalanceUpdate{}
	if marker != "" {
		done, err := b.store.Marked(marker)
		if err != nil || done {
			return false, err
		}
		update.Markers = []string{marker}
	}
	balance, err := b.store.Balance(to)
	if err != nil {
		return false, err
	}
	supply, err := b.store.Supply()
	if err != nil {
		return false, err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return false, ErrBalanceOverflow
	}
	update.Balances = map[common.Address]*uint256.Int{to: new(uint256.Int).Add(balance, amount)}
	update.Supply = nextSupply
	if err := b.store.Apply(update); err != nil {
		return false, err
	}
	b.emitter.Emit(events.TokenTransfer{Symbol: b.symbol, To: to, Amount: new(uint256.Int).Set(amount)})
	b.logger.Info("bank credit applied",
		slog.String("symbol", b.symbol),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.Dec()))
	return true, nil
}

// Transfer moves amount between two accounts.
func (b *Bank) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromBalance, err := b.store.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBalance, err := b.store.Balance(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	if err := b.store.Apply(state.BalanceUpdate{Balances: map[common.Address]*uint256.Int{
		from: new(uint256.Int).Sub(fromBalance, amount),
		to:   credited,
	}}); err != nil {
		return err
	}
	b.emitter.Emit(events.TokenTransfer{Symbol: b.symbol, From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// BalanceOf returns the balance of addr.
func (b *Bank) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return b.store.Balance(addr)
}

// TotalSupply returns the issued base asset.
func (b *Bank) TotalSupply() (*uint256.Int, error) {
	return b.store.Supply()
}
