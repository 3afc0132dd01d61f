package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"arkenstone/crypto"
	"arkenstone/native/staking"
	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/middleware"
)

const maxBodyBytes = 1 << 16

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("stakingd: request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.Any("error", err))
	}
	writeJSONError(w, r, status, code, err)
}

func poolParam(r *http.Request) (staking.PoolID, error) {
	return staking.ParsePoolID(chi.URLParam(r, "pool"))
}

func addrParam(r *http.Request) (common.Address, error) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		return common.Address{}, badRequest("invalid address: %v", err)
	}
	return addr, nil
}

func callerOf(r *http.Request) (common.Address, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return common.Address{}, errors.New("stakingd: caller missing from authenticated request")
	}
	return caller, nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

func decodeAmount(r *http.Request) (*uint256.Int, error) {
	var req api.AmountRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	value := strings.TrimSpace(req.Amount)
	if value == "" {
		return nil, badRequest("amount required")
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, badRequest("invalid amount %q: %v", value, err)
	}
	return amount, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func receiptResponse(rc staking.Receipt) api.ReceiptResponse {
	return api.ReceiptResponse{
		Pool:      rc.Pool.String(),
		User:      rc.User.Hex(),
		Amount:    dec(rc.Amount),
		Reward:    dec(rc.Reward),
		Principal: dec(rc.Principal),
		Timestamp: rc.Timestamp,
	}
}

type stakeFunc func(r *http.Request, pool staking.PoolID, caller common.Address, amount *uint256.Int) (staking.Receipt, error)

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request, fn stakeFunc) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := decodeAmount(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := fn(r, pool, caller, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse(receipt))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleStake(w, r, func(r *http.Request, pool staking.PoolID, caller common.Address, amount *uint256.Int) (staking.Receipt, error) {
		return s.ledger.Deposit(r.Context(), pool, caller, amount)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleStake(w, r, func(r *http.Request, pool staking.PoolID, caller common.Address, amount *uint256.Int) (staking.Receipt, error) {
		return s.ledger.Withdraw(r.Context(), pool, caller, amount)
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.ledger.Claim(r.Context(), pool, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse(receipt))
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req api.RateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	change, err := s.ledger.SetRate(r.Context(), caller, pool, req.Bps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RateChangeResponse{
		Pool:      change.Pool.String(),
		OldBps:    change.OldBps,
		NewBps:    change.NewBps,
		Timestamp: change.Timestamp,
	})
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bps, err := s.ledger.Rate(r.Context(), pool)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bounds := s.ledger.RateBounds()
	writeJSON(w, http.StatusOK, api.RateResponse{
		Pool:   pool.String(),
		Bps:    bps,
		MinBps: bounds.MinBps,
		MaxBps: bounds.MaxBps,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := addrParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.ledger.Position(r.Context(), pool, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PositionResponse{
		Pool:       view.Pool.String(),
		User:       view.User.Hex(),
		Principal:  dec(view.Principal),
		Pending:    dec(view.Pending),
		Checkpoint: view.Checkpoint,
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := addrParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pending, err := s.ledger.PendingReward(r.Context(), pool, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PendingResponse{Pool: pool.String(), User: user.Hex(), Pending: dec(pending)})
}

func (s *Server) handleTVL(w http.ResponseWriter, r *http.Request) {
	tvl := s.ledger.TVL(r.Context())
	writeJSON(w, http.StatusOK, api.TVLResponse{Base: dec(tvl.Base), Reward: dec(tvl.Reward)})
}

func (s *Server) handleOwner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.OwnerResponse{Owner: s.ledger.Owner().Hex(), Ledger: s.ledger.Address().Hex()})
}

func intQuery(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, badRequest("invalid %s %q", key, raw)
	}
	return v, nil
}

func (s *Server) handleTVLHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snaps, err := s.records.Snapshots(r.Context(), int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]api.TVLSnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, api.TVLSnapshotResponse{Base: snap.Base, Reward: snap.Reward, TakenAt: snap.TakenAt.UTC()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter.Limit = int(limit)

	records, err := s.records.Query(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]api.EventResponse, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.DecodeAttributes()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, api.EventResponse{
			Seq:        rec.Seq,
			Type:       rec.Type,
			Pool:       rec.Pool,
			Account:    rec.Account,
			Attributes: attrs,
			CreatedAt:  rec.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
