package events

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAddress(addr common.Address) string {
	return addr.Hex()
}

func zeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func normalizePool(pool string) string {
	return strings.ToLower(strings.TrimSpace(pool))
}
