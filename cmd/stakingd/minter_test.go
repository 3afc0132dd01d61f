package main

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"arkenstone/core/state"
	"arkenstone/native/token"
	"arkenstone/storage"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ledger = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newToken(t *testing.T, db storage.Database) *token.Token {
	t.Helper()
	arkn, err := token.New(owner, state.NewBalances(db, "arkn"), token.WithMetrics(nil))
	require.NoError(t, err)
	return arkn
}

func TestHandOverMinterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	arkn := newToken(t, db)

	require.NoError(t, handOverMinter(ctx, arkn, owner, ledger))
	require.Equal(t, ledger, arkn.Minter())
	require.NoError(t, handOverMinter(ctx, arkn, owner, ledger))

	// A restarted process sees the persisted minter.
	reopened := newToken(t, db)
	require.Equal(t, ledger, reopened.Minter())
	require.NoError(t, handOverMinter(ctx, reopened, owner, ledger))

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	require.Error(t, handOverMinter(ctx, reopened, stranger, common.HexToAddress("0x01")))
}
