package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/netutil"

	"arkenstone/core/events"
	"arkenstone/native/staking"
	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/idempotency"
	"arkenstone/services/stakingd/middleware"
)

func TestDepositRetryWithIdempotencyKeyAppliesOnce(t *testing.T) {
	store, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarness(t, func(cfg *Config) { cfg.Idempotency = store })

	token, err := middleware.IssueToken(testSecret, testIssuer, alice, time.Minute)
	require.NoError(t, err)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/pools/base/deposit", strings.NewReader(`{"amount":"100"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(api.HeaderIdempotencyKey, "retry-1")
		res := httptest.NewRecorder()
		h.srv.Handler().ServeHTTP(res, req)
		return res
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "hit", second.Header().Get(api.HeaderIdempotencyCache))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	view, err := h.ledger.Position(context.Background(), staking.PoolBase, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), view.Principal.Uint64())
}

func TestEventFilterNormalisesInput(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/pools/base/deposit", &alice, api.AmountRequest{Amount: "10"}).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/pools/reward/deposit", &alice, api.AmountRequest{Amount: "10"}).Code)

	// Full-width "BASE" folds to the base pool; the type matches regardless of case.
	res := h.do(http.MethodGet, "/v1/events?pool=%EF%BC%A2%EF%BC%A1%EF%BC%B3%EF%BC%A5&type=STAKING.DEPOSITED", nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	out := decode[[]api.EventResponse](t, res)
	require.Len(t, out, 1)
	require.Equal(t, events.TypeStakingDeposited, out[0].Type)
	require.Equal(t, "base", out[0].Pool)

	require.Equal(t, events.TypeStakingRewardsClaimed, canonicalEventType("staking.REWARDSCLAIMED"))
	require.Equal(t, "custom.event", canonicalEventType("custom.event"))
}

func TestServeOnLimitedListener(t *testing.T) {
	h := newHarness(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln = netutil.LimitListener(ln, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Serve(ctx, ln) }()

	res, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, res.Body.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
