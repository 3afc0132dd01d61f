package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arkenstone/core/types"
)

const (
	// TypeTokenTransfer captures balance movements, including mints (from the
	// zero address) and burns (to the zero address).
	TypeTokenTransfer = "token.transfer"
	// TypeTokenMinterUpdated records a change of the minting authority.
	TypeTokenMinterUpdated = "token.minterUpdated"
)

// TokenTransfer mirrors the ERC-20 Transfer record.
type TokenTransfer struct {
	Symbol string
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenTransfer) EventType() string { return TypeTokenTransfer }

// Event converts the structured payload into a broadcastable event.
func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

// TokenMinterUpdated captures a minter hand-over.
type TokenMinterUpdated struct {
	Symbol    string
	OldMinter common.Address
	NewMinter common.Address
}

// EventType satisfies the Event interface.
func (TokenMinterUpdated) EventType() string { return TypeTokenMinterUpdated }

// Event converts the structured payload into a broadcastable event.
func (e TokenMinterUpdated) Event() *types.Event {
	return &types.Event{Type: TypeTokenMinterUpdated, Attributes: map[string]string{
		"symbol":    strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"oldMinter": formatAddress(e.OldMinter),
		"newMinter": formatAddress(e.NewMinter),
	}}
}
