package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"arkenstone/native/token"
)

// handOverMinter makes the ledger the sole ARKN minter. It is a no-op once
// the ledger already holds the role.
func handOverMinter(ctx context.Context, arkn *token.Token, owner, ledger common.Address) error {
	current := arkn.Minter()
	if current == ledger {
		return nil
	}
	if current != owner {
		return fmt.Errorf("minter is %s, expected owner %s or ledger %s", current.Hex(), owner.Hex(), ledger.Hex())
	}
	return arkn.SetMinter(ctx, owner, ledger)
}
