// Package api defines the JSON payloads exchanged with stakingd.
package api

import "time"

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          = "BadRequest"
	CodeUnauthorized        = "Unauthorized"
	CodeZeroAmount          = "ZeroAmount"
	CodeZeroAddress         = "ZeroAddress"
	CodeAmountOverflow      = "AmountOverflow"
	CodeInsufficientStake   = "InsufficientStake"
	CodeInsufficientBalance = "InsufficientBalance"
	CodeNoRewards           = "NoRewards"
	CodeNotOwner            = "NotOwner"
	CodeRateOutOfRange      = "RateOutOfRange"
	CodeUnknownPool         = "UnknownPool"
	CodeReentrantCall       = "ReentrantCall"
	CodeRateLimited         = "RateLimited"
	CodeIdempotencyConflict = "IdempotencyConflict"
	CodeInternal            = "Internal"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// HeaderIdempotencyKey lets a client retry a mutating call safely. A replayed
// response carries HeaderIdempotencyCache set to "hit".
const (
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotencyCache = "X-Idempotency-Cache"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// AmountRequest is the body of deposit and withdraw calls. Amounts are
// decimal strings in base units.
type AmountRequest struct {
	Amount string `json:"amount"`
}

type RateRequest struct {
	Bps uint64 `json:"bps"`
}

type ReceiptResponse struct {
	Pool      string `json:"pool"`
	User      string `json:"user"`
	Amount    string `json:"amount"`
	Reward    string `json:"reward"`
	Principal string `json:"principal"`
	Timestamp uint64 `json:"timestamp"`
}

type RateResponse struct {
	Pool   string `json:"pool"`
	Bps    uint64 `json:"bps"`
	MinBps uint64 `json:"minBps"`
	MaxBps uint64 `json:"maxBps"`
}

type RateChangeResponse struct {
	Pool      string `json:"pool"`
	OldBps    uint64 `json:"oldBps"`
	NewBps    uint64 `json:"newBps"`
	Timestamp uint64 `json:"timestamp"`
}

type PositionResponse struct {
	Pool       string `json:"pool"`
	User       string `json:"user"`
	Principal  string `json:"principal"`
	Pending    string `json:"pending"`
	Checkpoint uint64 `json:"checkpoint"`
}

type PendingResponse struct {
	Pool    string `json:"pool"`
	User    string `json:"user"`
	Pending string `json:"pending"`
}

type TVLResponse struct {
	Base   string `json:"base"`
	Reward string `json:"reward"`
}

type TVLSnapshotResponse struct {
	Base    string    `json:"base"`
	Reward  string    `json:"reward"`
	TakenAt time.Time `json:"takenAt"`
}

type OwnerResponse struct {
	Owner  string `json:"owner"`
	Ledger string `json:"ledger"`
}

type EventResponse struct {
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	Pool       string            `json:"pool,omitempty"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}
