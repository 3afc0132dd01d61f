package staking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ledgerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	aliceAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	bobAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d4")

	genesis = time.Unix(1_700_000_000, 0)
	year    = time.Duration(SecondsPerYear) * time.Second
)

type fakeToken struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
	minted   *uint256.Int
	burned   *uint256.Int
	mintErr  error
	burnErr  error
	onMint   func(ctx context.Context)
}

func newFakeToken() *fakeToken {
	return &fakeToken{
		balances: make(map[common.Address]*uint256.Int),
		minted:   new(uint256.Int),
		burned:   new(uint256.Int),
	}
}

func (t *fakeToken) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	if t.onMint != nil {
		t.onMint(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mintErr != nil {
		return t.mintErr
	}
	if caller != ledgerAddr {
		return errors.New("fake token: not minter")
	}
	t.credit(to, amount)
	t.minted.Add(t.minted, amount)
	return nil
}

func (t *fakeToken) Burn(_ context.Context, _ common.Address, from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.burnErr != nil {
		return t.burnErr
	}
	bal := t.balance(from)
	if bal.Lt(amount) {
		return errors.New("fake token: burn exceeds balance")
	}
	bal.Sub(bal, amount)
	t.burned.Add(t.burned, amount)
	return nil
}

func (t *fakeToken) credit(addr common.Address, amount *uint256.Int) {
	bal := t.balance(addr)
	bal.Add(bal, amount)
}

func (t *fakeToken) balance(addr common.Address) *uint256.Int {
	bal, ok := t.balances[addr]
	if !ok {
		bal = new(uint256.Int)
		t.balances[addr] = bal
	}
	return bal
}

func (t *fakeToken) BalanceOf(addr common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.balance(addr))
}

type fakeCustody struct {
	mu         sync.Mutex
	held       *uint256.Int
	accepted   int
	released   int
	acceptErr  error
	releaseErr error
	onAccept   func(ctx context.Context)
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{held: new(uint256.Int)}
}

func (c *fakeCustody) Accept(ctx context.Context, _ common.Address, amount *uint256.Int) error {
	if c.onAccept != nil {
		c.onAccept(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acceptErr != nil {
		return c.acceptErr
	}
	c.held.Add(c.held, amount)
	c.accepted++
	return nil
}

func (c *fakeCustody) Release(_ context.Context, _ common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releaseErr != nil {
		return c.releaseErr
	}
	if c.held.Lt(amount) {
		return errors.New("fake custody: insufficient holdings")
	}
	c.held.Sub(c.held, amount)
	c.released++
	return nil
}

func (c *fakeCustody) Held() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(c.held)
}

type harness struct {
	ledger   *Ledger
	token    *fakeToken
	base     *fakeCustody
	reward   *fakeCustody
	clock    *ManualClock
	recorder *events.Recorder
	store    *MemoryStore
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		token:    newFakeToken(),
		base:     newFakeCustody(),
		reward:   newFakeCustody(),
		clock:    NewManualClock(genesis),
		recorder: &events.Recorder{},
		store:    NewMemoryStore(),
	}
	all := append([]Option{
		WithClock(h.clock),
		WithEmitter(h.recorder),
		WithStore(h.store),
		WithMetrics(nil),
	}, opts...)
	ledger, err := NewLedger(Config{Owner: ownerAddr, Address: ledgerAddr}, h.token, h.base, h.reward, all...)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	h.ledger = ledger
	return h
}

func units(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mustDeposit(t *testing.T, h *harness, pool PoolID, user common.Address, amount uint64) Receipt {
	t.Helper()
	receipt, err := h.ledger.Deposit(context.Background(), pool, user, units(amount))
	if err != nil {
		t.Fatalf("deposit %d into %s: %v", amount, pool, err)
	}
	return receipt
}

func assertTotalMatchesPositions(t *testing.T, l *Ledger) {
	t.Helper()
	for _, id := range Pools {
		pool := l.pools[id]
		sum := new(uint256.Int)
		pool.Range(func(_ common.Address, pos Position) bool {
			sum.Add(sum, pos.Principal)
			return true
		})
		if !sum.Eq(pool.total) {
			t.Fatalf("%s total %s does not match sum of positions %s", id, pool.total.Dec(), sum.Dec())
		}
	}
}
