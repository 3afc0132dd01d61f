package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"arkenstone/native/staking"
	"arkenstone/services/stakingd/api"
)

func TestDepositSendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/pools/reward/deposit", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req api.AmountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "250", req.Amount)
		_ = json.NewEncoder(w).Encode(api.ReceiptResponse{Pool: "reward", Amount: "250", Reward: "0", Principal: "250"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithToken("tok"))
	require.NoError(t, err)
	receipt, err := c.Deposit(context.Background(), staking.PoolReward, uint256.NewInt(250))
	require.NoError(t, err)
	require.Equal(t, "250", receipt.Principal)
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "staking: insufficient stake", Code: api.CodeInsufficientStake, RequestID: "r1"})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.Withdraw(context.Background(), staking.PoolBase, uint256.NewInt(1))
	require.ErrorIs(t, err, staking.ErrInsufficientStake)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "r1", apiErr.RequestID)
}

func TestQueryParameters(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/events":
			require.Equal(t, "base", r.URL.Query().Get("pool"))
			require.Equal(t, "7", r.URL.Query().Get("after"))
			require.Equal(t, "5", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode([]api.EventResponse{{Seq: 8, Type: "staking.deposited"}})
		case "/v1/pools/base/positions/" + user.Hex() + "/pending":
			_ = json.NewEncoder(w).Encode(api.PendingResponse{Pool: "base", User: user.Hex(), Pending: "40"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	evts, err := c.Events(context.Background(), EventQuery{Pool: "base", After: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	pending, err := c.Pending(context.Background(), staking.PoolBase, user)
	require.NoError(t, err)
	require.Equal(t, "40", pending.Pending)

	_, err = c.TVL(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
}

func TestStreamEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/events/stream", r.URL.Path)
		require.Equal(t, "base", r.URL.Query().Get("pool"))
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		for seq := int64(1); seq <= 2; seq++ {
			data, _ := json.Marshal(api.EventResponse{Seq: seq, Type: "staking.deposited", Pool: "base"})
			require.NoError(t, conn.Write(r.Context(), websocket.MessageText, data))
		}
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	var seen []int64
	err = c.StreamEvents(context.Background(), EventQuery{Pool: "base"}, func(evt api.EventResponse) error {
		seen = append(seen, evt.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, seen)
}
