package staking

import "errors"

var (
	ErrZeroAmount        = errors.New("staking: amount must be positive")
	ErrInsufficientStake = errors.New("staking: insufficient stake")
	ErrNoRewards         = errors.New("staking: no rewards to claim")
	ErrNotOwner          = errors.New("staking: caller is not the owner")
	ErrRateOutOfRange    = errors.New("staking: rate out of range")
	ErrZeroAddress       = errors.New("staking: zero address")
	ErrUnknownPool       = errors.New("staking: unknown pool")
	ErrAmountOverflow    = errors.New("staking: amount overflow")
	ErrReentrantCall     = errors.New("staking: reentrant call")
	ErrCorruptState      = errors.New("staking: persisted state inconsistent")
)
