// Package genesis seeds the base asset and ARKN balances on first boot.
package genesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"arkenstone/config"
	"arkenstone/crypto"
	"arkenstone/native/bank"
	"arkenstone/native/token"
	"arkenstone/storage"
)

// Marker records that every allocation was applied to a database.
var Marker = []byte("genesis/applied")

// allocationMarker labels a single allocation. It is stored with the
// balance change itself, so a restart after a partial run resumes with the
// allocations that did not land.
func allocationMarker(index int, addr common.Address) string {
	return fmt.Sprintf("genesis/%d/%s", index, strings.ToLower(addr.Hex()))
}

// Apply credits the configured allocations once per data directory.
// ARKN allocations are minted by the owner, so this must run before the
// minter role moves to the ledger.
func Apply(ctx context.Context, db storage.Database, allocs []config.Allocation, owner common.Address, base *bank.Bank, arkn *token.Token, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Get(Marker); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("genesis: read marker: %w", err)
	}
	for idx, alloc := range allocs {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		baseAmount, err := config.ParseAmount(alloc.Base)
		if err != nil {
			return fmt.Errorf("genesis %s: %w", addr.Hex(), err)
		}
		arknAmount, err := config.ParseAmount(alloc.ARKN)
		if err != nil {
			return fmt.Errorf("genesis %s: %w", addr.Hex(), err)
		}
		label := allocationMarker(idx, addr)
		var credited, minted bool
		if !baseAmount.IsZero() {
			if credited, err = base.CreditOnce(ctx, addr, baseAmount, label); err != nil {
				return fmt.Errorf("genesis credit %s: %w", addr.Hex(), err)
			}
		}
		if !arknAmount.IsZero() {
			if minted, err = arkn.MintOnce(ctx, owner, addr, arknAmount, label); err != nil {
				return fmt.Errorf("genesis mint %s: %w", addr.Hex(), err)
			}
		}
		logger.Info("genesis allocation applied",
			slog.String("address", addr.Hex()),
			slog.String("base", baseAmount.Dec()),
			slog.String("arkn", arknAmount.Dec()),
			slog.Bool("base_credited", credited),
			slog.Bool("arkn_minted", minted))
	}
	return db.Put(Marker, []byte{1})
}

