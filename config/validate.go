package config

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"

	"arkenstone/crypto"
)

// Validate checks the normalised configuration for inconsistencies.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Owner != "" {
		if _, err := crypto.ParseAddress(cfg.Owner); err != nil {
			return fmt.Errorf("config: Owner: %w", err)
		}
	}
	if cfg.LedgerAddress != "" {
		if _, err := crypto.ParseAddress(cfg.LedgerAddress); err != nil {
			return fmt.Errorf("config: LedgerAddress: %w", err)
		}
	}
	s := cfg.Staking
	if s.MinRateBps > s.MaxRateBps {
		return fmt.Errorf("staking: MinRateBps %d exceeds MaxRateBps %d", s.MinRateBps, s.MaxRateBps)
	}
	for name, bps := range map[string]uint64{"BaseRateBps": s.BaseRateBps, "RewardRateBps": s.RewardRateBps} {
		if bps < s.MinRateBps || bps > s.MaxRateBps {
			return fmt.Errorf("staking: %s %d outside [%d, %d]", name, bps, s.MinRateBps, s.MaxRateBps)
		}
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("config: MaxConnections must not be negative")
	}
	if cfg.Idempotency.TTLHours < 0 {
		return fmt.Errorf("idempotency: TTLHours must not be negative")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if !cfg.Snapshots.Disabled {
		if _, err := cron.ParseStandard(cfg.Snapshots.Schedule); err != nil {
			return fmt.Errorf("snapshots: invalid schedule %q: %w", cfg.Snapshots.Schedule, err)
		}
	}
	for i, alloc := range cfg.Genesis {
		if _, err := crypto.ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if _, err := ParseAmount(alloc.Base); err != nil {
			return fmt.Errorf("genesis[%d].Base: %w", i, err)
		}
		if _, err := ParseAmount(alloc.ARKN); err != nil {
			return fmt.Errorf("genesis[%d].ARKN: %w", i, err)
		}
	}
	return nil
}

// ParseAmount parses a decimal base-unit amount. Empty input is zero.
func ParseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}
