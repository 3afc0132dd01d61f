package bank

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Vault holds base-pool principal for the staking ledger.
type Vault struct {
	bank   *Bank
	holder common.Address
}

func NewVault(bank *Bank, holder common.Address) *Vault {
	return &Vault{bank: bank, holder: holder}
}

// Accept moves the deposit from the staker into the vault.
func (v *Vault) Accept(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return v.bank.Transfer(ctx, from, v.holder, amount)
}

// Release returns principal from the vault to the staker.
func (v *Vault) Release(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return v.bank.Transfer(ctx, v.holder, to, amount)
}

func (v *Vault) Holdings() (*uint256.Int, error) {
	return v.bank.BalanceOf(v.holder)
}
