package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Vault holds reward-pool principal on behalf of the staking ledger.
type Vault struct {
	token  *Token
	holder common.Address
}

// NewVault binds custody to the holder account, normally the ledger address.
func NewVault(token *Token, holder common.Address) *Vault {
	return &Vault{token: token, holder: holder}
}

// Accept pulls amount from the depositor into the vault.
func (v *Vault) Accept(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return v.token.Transfer(ctx, from, v.holder, amount)
}

// Release pays amount out of the vault.
func (v *Vault) Release(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return v.token.Transfer(ctx, v.holder, to, amount)
}

// Holdings returns the amount currently held by the vault.
func (v *Vault) Holdings() (*uint256.Int, error) {
	return v.token.BalanceOf(v.holder)
}
