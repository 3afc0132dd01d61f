package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"arkenstone/native/bank"
	"arkenstone/native/staking"
	"arkenstone/native/token"
	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/middleware"
)

// errBadRequest marks malformed input that never reached the ledger.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// classify maps a ledger failure to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, api.CodeBadRequest
	case errors.Is(err, staking.ErrZeroAmount):
		return http.StatusBadRequest, api.CodeZeroAmount
	case errors.Is(err, staking.ErrZeroAddress):
		return http.StatusBadRequest, api.CodeZeroAddress
	case errors.Is(err, staking.ErrAmountOverflow):
		return http.StatusBadRequest, api.CodeAmountOverflow
	case errors.Is(err, staking.ErrNotOwner):
		return http.StatusForbidden, api.CodeNotOwner
	case errors.Is(err, staking.ErrUnknownPool):
		return http.StatusNotFound, api.CodeUnknownPool
	case errors.Is(err, staking.ErrReentrantCall):
		return http.StatusConflict, api.CodeReentrantCall
	case errors.Is(err, staking.ErrInsufficientStake):
		return http.StatusUnprocessableEntity, api.CodeInsufficientStake
	case errors.Is(err, staking.ErrNoRewards):
		return http.StatusUnprocessableEntity, api.CodeNoRewards
	case errors.Is(err, staking.ErrRateOutOfRange):
		return http.StatusUnprocessableEntity, api.CodeRateOutOfRange
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, api.CodeInsufficientBalance
	default:
		return http.StatusInternalServerError, api.CodeInternal
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	message := strings.TrimSpace(err.Error())
	if status >= http.StatusInternalServerError || message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, api.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
