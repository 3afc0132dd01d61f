package staking

import "fmt"

// DefaultRateBps is the starting annual rate of both pools.
const DefaultRateBps uint64 = 400

// RateBounds are the inclusive limits every rate must respect.
type RateBounds struct {
	MinBps uint64
	MaxBps uint64
}

// DefaultRateBounds returns the production bounds: 1% to 10% per year.
func DefaultRateBounds() RateBounds {
	return RateBounds{MinBps: 100, MaxBps: 1000}
}

// Validate ensures the bounds describe a non-empty range.
func (b RateBounds) Validate() error {
	if b.MinBps > b.MaxBps {
		return fmt.Errorf("staking: min rate %d exceeds max rate %d", b.MinBps, b.MaxBps)
	}
	if b.MaxBps > BasisPoints*100 {
		return fmt.Errorf("staking: max rate %d exceeds %d", b.MaxBps, BasisPoints*100)
	}
	return nil
}

// Contains reports whether bps lies within the bounds.
func (b RateBounds) Contains(bps uint64) bool {
	return bps >= b.MinBps && bps <= b.MaxBps
}

// RateConfig holds the current annual rate of each pool. It is not safe for
// concurrent use; the ledger serialises access.
type RateConfig struct {
	bounds  RateBounds
	current map[PoolID]uint64
}

// NewRateConfig validates the bounds and the starting rate of every pool.
// Pools missing from initial start at DefaultRateBps.
func NewRateConfig(bounds RateBounds, initial map[PoolID]uint64) (*RateConfig, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	cfg := &RateConfig{bounds: bounds, current: make(map[PoolID]uint64, len(Pools))}
	for _, pool := range Pools {
		bps, ok := initial[pool]
		if !ok || bps == 0 {
			bps = DefaultRateBps
		}
		if !bounds.Contains(bps) {
			return nil, fmt.Errorf("%w: %s starts at %d bps outside [%d, %d]", ErrRateOutOfRange, pool, bps, bounds.MinBps, bounds.MaxBps)
		}
		cfg.current[pool] = bps
	}
	for pool := range initial {
		if _, ok := cfg.current[pool]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
		}
	}
	return cfg, nil
}

// Bounds returns the immutable rate bounds.
func (c *RateConfig) Bounds() RateBounds { return c.bounds }

// Rate returns the current rate of pool.
func (c *RateConfig) Rate(pool PoolID) (uint64, error) {
	bps, ok := c.current[pool]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}
	return bps, nil
}

// Set replaces the rate of pool and returns the previous value. Out of range
// values are rejected without modifying the configuration.
func (c *RateConfig) Set(pool PoolID, bps uint64) (uint64, error) {
	old, err := c.Rate(pool)
	if err != nil {
		return 0, err
	}
	if !c.bounds.Contains(bps) {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrRateOutOfRange, bps, c.bounds.MinBps, c.bounds.MaxBps)
	}
	c.current[pool] = bps
	return old, nil
}

func (c *RateConfig) restore(pool PoolID, bps uint64) {
	c.current[pool] = bps
}
