package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// SecondsPerYear is the fixed 365-day year used for annual rates.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60
	// BasisPoints is the denominator of a rate expressed in bps.
	BasisPoints uint64 = 10_000
)

var annualDenominator = uint256.NewInt(BasisPoints * SecondsPerYear)

// Accrue computes principal * rateBps * elapsed / (10000 * SecondsPerYear),
// floored. The product is evaluated with a 512-bit intermediate so only a
// final value wider than 256 bits overflows.
func Accrue(principal *uint256.Int, rateBps, elapsed uint64) (*uint256.Int, error) {
	if principal == nil || principal.IsZero() || rateBps == 0 || elapsed == 0 {
		return new(uint256.Int), nil
	}
	factor := new(uint256.Int).Mul(uint256.NewInt(rateBps), uint256.NewInt(elapsed))
	reward, overflow := new(uint256.Int).MulDivOverflow(principal, factor, annualDenominator)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return reward, nil
}

// Settle converts the time elapsed since the position's checkpoint into a
// reward and returns the position with its checkpoint moved to now. The
// principal is left untouched. now must not precede the checkpoint.
func Settle(pos Position, rateBps, now uint64) (*uint256.Int, Position, error) {
	if now < pos.Checkpoint {
		panic(fmt.Sprintf("staking: settlement time %d precedes checkpoint %d", now, pos.Checkpoint))
	}
	reward, err := Accrue(pos.Principal, rateBps, now-pos.Checkpoint)
	if err != nil {
		return nil, Position{}, err
	}
	next := pos.Clone()
	next.Checkpoint = now
	return reward, next, nil
}
