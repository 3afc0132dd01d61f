package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/events"
	"arkenstone/core/state"
	"arkenstone/storage"
)

func TestBankTransfer(t *testing.T) {
	alice := common.HexToAddress("0x0000000000000000000000000000000000000001")
	vaultAddr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	recorder := &events.Recorder{}
	b, err := New("base", state.NewBalances(storage.NewMemDB(), "base"), recorder, nil)
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	if b.Symbol() != "BASE" {
		t.Fatalf("expected normalised symbol, got %s", b.Symbol())
	}
	ctx := context.Background()
	if err := b.Credit(ctx, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	vault := NewVault(b, vaultAddr)
	if err := vault.Accept(ctx, alice, uint256.NewInt(60)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := vault.Accept(ctx, alice, uint256.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := vault.Release(ctx, alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("release: %v", err)
	}
	held, _ := vault.Holdings()
	balance, _ := b.BalanceOf(alice)
	supply, _ := b.TotalSupply()
	if held.Uint64() != 50 || balance.Uint64() != 50 || supply.Uint64() != 100 {
		t.Fatalf("unexpected held=%s balance=%s supply=%s", held.Dec(), balance.Dec(), supply.Dec())
	}
	if err := b.Transfer(ctx, alice, common.Address{}, uint256.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if got := len(recorder.Events()); got != 3 {
		t.Fatalf("expected 3 transfer events, got %d", got)
	}
}
