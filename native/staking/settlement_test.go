package staking

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"testing/quick"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestAccrueOneYear(t *testing.T) {
	reward, err := Accrue(units(2000), 400, SecondsPerYear)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if reward.Uint64() != 80 {
		t.Fatalf("expected 80, got %s", reward.Dec())
	}
}

func TestAccrueFloors(t *testing.T) {
	reward, err := Accrue(units(1), 1000, SecondsPerYear)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !reward.IsZero() {
		t.Fatalf("expected floored reward 0, got %s", reward.Dec())
	}
}

func TestAccrueUsesWideIntermediate(t *testing.T) {
	// principal * rate * elapsed exceeds 256 bits while the result does not.
	principal := new(uint256.Int).Lsh(uint256.NewInt(1), 230)
	reward, err := Accrue(principal, 1000, SecondsPerYear*50)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	want := new(uint256.Int).Mul(principal, uint256.NewInt(5))
	if !reward.Eq(want) {
		t.Fatalf("expected %s, got %s", want.Dec(), reward.Dec())
	}

	max := new(uint256.Int).SetAllOne()
	if _, err := Accrue(max, 1000, SecondsPerYear*20); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestSettleIdempotentAtZeroElapsed(t *testing.T) {
	property := func(principal, checkpoint uint64, rate uint16) bool {
		pos := Position{Principal: uint256.NewInt(principal), Checkpoint: checkpoint}
		first, settled, err := Settle(pos, uint64(rate), checkpoint)
		if err != nil || !first.IsZero() {
			return false
		}
		second, _, err := Settle(settled, uint64(rate), checkpoint)
		return err == nil && second.IsZero() && settled.Principal.Eq(pos.Principal)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAccrualLinearInElapsed(t *testing.T) {
	property := func(principal uint32, rate uint16, elapsed uint32) bool {
		// Choose a principal that makes the half interval divide exactly.
		p := new(uint256.Int).Mul(uint256.NewInt(uint64(principal)), annualDenominator)
		single, err := Accrue(p, uint64(rate), uint64(elapsed))
		if err != nil {
			return false
		}
		double, err := Accrue(p, uint64(rate), 2*uint64(elapsed))
		if err != nil {
			return false
		}
		return double.Eq(new(uint256.Int).Mul(single, uint256.NewInt(2)))
	}
	if err := quick.Check(property, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAccrualMonotonic(t *testing.T) {
	property := func(principal uint64, rate uint16, a, b uint32) bool {
		lo, hi := uint64(a), uint64(b)
		if lo > hi {
			lo, hi = hi, lo
		}
		first, err1 := Accrue(uint256.NewInt(principal), uint64(rate), lo)
		second, err2 := Accrue(uint256.NewInt(principal), uint64(rate), hi)
		return err1 == nil && err2 == nil && !second.Lt(first)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Fatal(err)
	}
}

func TestSettlePanicsOnTimeRegression(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_, _, _ = Settle(Position{Principal: units(1), Checkpoint: 10}, 400, 9)
}

func TestRateBoundsEdges(t *testing.T) {
	bounds := DefaultRateBounds()
	cases := map[uint64]bool{99: false, 100: true, 400: true, 1000: true, 1001: false}
	for bps, want := range cases {
		if got := bounds.Contains(bps); got != want {
			t.Fatalf("bps %d: expected %v, got %v", bps, want, got)
		}
	}
	if err := (RateBounds{MinBps: 500, MaxBps: 100}).Validate(); err == nil {
		t.Fatalf("expected inverted bounds to fail")
	}
}

func TestRandomOperationSequencesPreserveInvariants(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(7))
	users := []common.Address{aliceAddr, bobAddr, ownerAddr}
	ctx := context.Background()
	for step := 0; step < 500; step++ {
		pool := Pools[rng.Intn(len(Pools))]
		user := users[rng.Intn(len(users))]
		before := h.ledger.pools[pool].Position(user)
		totalBefore := h.ledger.pools[pool].Total()
		switch rng.Intn(4) {
		case 0:
			_, _ = h.ledger.Deposit(ctx, pool, user, units(uint64(rng.Intn(1000))))
		case 1:
			amount := units(uint64(rng.Intn(500)))
			receipt, err := h.ledger.Withdraw(ctx, pool, user, amount)
			if err == nil {
				want := new(uint256.Int).Sub(before.Principal, amount)
				if !receipt.Principal.Eq(want) {
					t.Fatalf("step %d: principal %s, want %s", step, receipt.Principal.Dec(), want.Dec())
				}
				wantTotal := new(uint256.Int).Sub(totalBefore, amount)
				if !h.ledger.pools[pool].Total().Eq(wantTotal) {
					t.Fatalf("step %d: total not reduced by withdrawal", step)
				}
			} else if amount.IsZero() {
				if !errors.Is(err, ErrZeroAmount) {
					t.Fatalf("step %d: expected ErrZeroAmount, got %v", step, err)
				}
			} else if before.Principal.Lt(amount) && !errors.Is(err, ErrInsufficientStake) {
				t.Fatalf("step %d: expected ErrInsufficientStake, got %v", step, err)
			}
		case 2:
			_, _ = h.ledger.Claim(ctx, pool, user)
		case 3:
			h.clock.Advance(time.Duration(rng.Intn(86_400*30)) * time.Second)
		}
		assertTotalMatchesPositions(t, h.ledger)
	}
}
