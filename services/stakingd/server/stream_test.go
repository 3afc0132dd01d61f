package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"arkenstone/core/events"
	"arkenstone/services/stakingd/api"
)

func TestEventStreamReplaysAndFollows(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/pools/base/deposit", &alice, api.AmountRequest{Amount: "100"}).Code)

	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/stream?type=" + events.TypeStakingDeposited
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() api.EventResponse {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt api.EventResponse
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}

	first := read()
	require.Equal(t, events.TypeStakingDeposited, first.Type)
	require.Equal(t, "100", first.Attributes["amount"])

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/pools/reward/deposit", &alice, api.AmountRequest{Amount: "7"}).Code)
	second := read()
	require.Greater(t, second.Seq, first.Seq)
	require.Equal(t, "reward", second.Pool)
	require.Equal(t, "7", second.Attributes["amount"])
}

func TestEventStreamRejectsBadFilter(t *testing.T) {
	h := newHarness(t)
	res := h.do(http.MethodGet, "/v1/events/stream?pool=gold", nil, nil)
	requireError(t, res, http.StatusNotFound, api.CodeUnknownPool)
}
