package staking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
	"arkenstone/core/state"
	"arkenstone/native/bank"
	"arkenstone/native/staking"
	"arkenstone/native/token"
	"arkenstone/storage"
)

func TestLedgerWithTokenAndBank(t *testing.T) {
	var (
		owner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		ledgerID  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
		staker    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
		ctx       = context.Background()
		db        = storage.NewMemDB()
		recorder  = &events.Recorder{}
		clock     = staking.NewManualClock(time.Unix(1_700_000_000, 0))
		oneYear   = time.Duration(staking.SecondsPerYear) * time.Second
	)

	arkn, err := token.New(owner, state.NewBalances(db, token.Symbol), token.WithEmitter(recorder), token.WithMetrics(nil))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	base, err := bank.New("base", state.NewBalances(db, "base"), recorder, nil)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	if err := base.Credit(ctx, staker, uint256.NewInt(5000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := arkn.Mint(ctx, owner, staker, uint256.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}

	ledger, err := staking.NewLedger(staking.Config{Owner: owner, Address: ledgerID}, arkn,
		bank.NewVault(base, ledgerID), token.NewVault(arkn, ledgerID),
		staking.WithStore(state.NewStakingStore(db)),
		staking.WithClock(clock),
		staking.WithEmitter(recorder),
		staking.WithMetrics(nil))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	if _, err := ledger.Deposit(ctx, staking.PoolBase, staker, uint256.NewInt(2000)); err != nil {
		t.Fatalf("deposit base: %v", err)
	}
	if _, err := ledger.Deposit(ctx, staking.PoolReward, staker, uint256.NewInt(500)); err != nil {
		t.Fatalf("deposit reward: %v", err)
	}
	clock.Advance(oneYear)

	if _, err := ledger.Claim(ctx, staking.PoolBase, staker); err == nil {
		t.Fatalf("claim must fail while the ledger is not the minter")
	}
	if err := arkn.SetMinter(ctx, owner, ledgerID); err != nil {
		t.Fatalf("set minter: %v", err)
	}
	receipt, err := ledger.Claim(ctx, staking.PoolBase, staker)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if receipt.Reward.Uint64() != 80 {
		t.Fatalf("expected reward 80, got %s", receipt.Reward.Dec())
	}

	if _, err := ledger.Withdraw(ctx, staking.PoolReward, staker, uint256.NewInt(500)); err != nil {
		t.Fatalf("withdraw reward pool: %v", err)
	}
	balance, _ := arkn.BalanceOf(staker)
	// 1000 seeded - 500 staked + 80 base reward + 500 returned + 20 reward-pool reward
	if balance.Uint64() != 1100 {
		t.Fatalf("expected ARKN balance 1100, got %s", balance.Dec())
	}
	baseBalance, _ := base.BalanceOf(staker)
	if baseBalance.Uint64() != 3000 {
		t.Fatalf("expected base balance 3000, got %s", baseBalance.Dec())
	}
	if _, err := ledger.Withdraw(ctx, staking.PoolBase, staker, uint256.NewInt(2001)); !errors.Is(err, staking.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	tvl := ledger.TVL(ctx)
	if tvl.Base.Uint64() != 2000 || !tvl.Reward.IsZero() {
		t.Fatalf("unexpected tvl base=%s reward=%s", tvl.Base.Dec(), tvl.Reward.Dec())
	}
}

func TestDepositWithoutFundsLeavesNoTrace(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ledgerID := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	staker := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	db := storage.NewMemDB()
	arkn, _ := token.New(ledgerID, state.NewBalances(db, token.Symbol), token.WithMetrics(nil))
	base, _ := bank.New("base", state.NewBalances(db, "base"), nil, nil)
	store := state.NewStakingStore(db)
	ledger, err := staking.NewLedger(staking.Config{Owner: owner, Address: ledgerID}, arkn,
		bank.NewVault(base, ledgerID), token.NewVault(arkn, ledgerID),
		staking.WithStore(store), staking.WithMetrics(nil))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if _, err := ledger.Deposit(context.Background(), staking.PoolBase, staker, uint256.NewInt(1)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected bank.ErrInsufficientBalance, got %v", err)
	}
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Positions[staking.PoolBase]) != 0 || !snap.Totals[staking.PoolBase].IsZero() {
		t.Fatalf("failed deposit left persisted state behind")
	}
}
