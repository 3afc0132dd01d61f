package token

import "errors"

var (
	ErrNotMinter           = errors.New("token: caller is not the minter")
	ErrZeroAddress         = errors.New("token: zero address")
	ErrZeroAmount          = errors.New("token: amount must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyOverflow      = errors.New("token: supply overflow")
)
