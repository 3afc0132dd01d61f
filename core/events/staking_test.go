package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestStakingDepositedEventAttributes(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	evt := StakingDeposited{
		Pool:      " Base ",
		Account:   addr,
		Amount:    uint256.NewInt(2000),
		Principal: uint256.NewInt(2500),
		Timestamp: 42,
	}.Event()
	if evt.Type != TypeStakingDeposited {
		t.Fatalf("unexpected type %q", evt.Type)
	}
	if evt.Attr("pool") != "base" {
		t.Fatalf("expected normalised pool, got %q", evt.Attr("pool"))
	}
	if evt.Attr("addr") != addr.Hex() {
		t.Fatalf("unexpected addr %q", evt.Attr("addr"))
	}
	if evt.Attr("amount") != "2000" || evt.Attr("principal") != "2500" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
	if evt.Attr("timestamp") != "42" {
		t.Fatalf("unexpected timestamp %q", evt.Attr("timestamp"))
	}
}

func TestRateUpdatedOmitsZeroCaller(t *testing.T) {
	evt := StakingRateUpdated{Pool: "reward", OldBps: 400, NewBps: 1000}.Event()
	if _, ok := evt.Attributes["caller"]; ok {
		t.Fatalf("expected caller to be omitted")
	}
	if evt.Attr("oldBps") != "400" || evt.Attr("newBps") != "1000" {
		t.Fatalf("unexpected rates: %+v", evt.Attributes)
	}
}

func TestRewardsClaimedNilAmountRendersZero(t *testing.T) {
	evt := StakingRewardsClaimed{Pool: "base"}.Event()
	if evt.Attr("amount") != "0" {
		t.Fatalf("expected zero amount, got %q", evt.Attr("amount"))
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	var first, second Recorder
	fan := Fanout{&first, nil, &second}
	fan.Emit(StakingWithdrawn{Pool: "base"})
	fan.Emit(TokenTransfer{Symbol: "arkn"})

	for _, rec := range []*Recorder{&first, &second} {
		got := rec.Types()
		if len(got) != 2 || got[0] != TypeStakingWithdrawn || got[1] != TypeTokenTransfer {
			t.Fatalf("unexpected recorded types: %v", got)
		}
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("expected reset recorder to be empty")
	}
}

func TestEventCloneIsolatesAttributes(t *testing.T) {
	original := TokenMinterUpdated{Symbol: "arkn"}.Event()
	clone := original.Clone()
	clone.Attributes["symbol"] = "XXX"
	if original.Attr("symbol") != "ARKN" {
		t.Fatalf("clone mutated original: %q", original.Attr("symbol"))
	}
}
