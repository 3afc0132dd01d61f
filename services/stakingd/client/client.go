// Package client is a typed HTTP client for stakingd.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"nhooyr.io/websocket"

	"arkenstone/native/bank"
	"arkenstone/native/staking"
	"arkenstone/services/stakingd/api"
)

// APIError is a non-2xx response from stakingd.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("stakingd: %d %s: %s (request %s)", e.Status, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("stakingd: %d %s: %s", e.Status, e.Code, e.Message)
}

var sentinels = map[string]error{
	api.CodeZeroAmount:          staking.ErrZeroAmount,
	api.CodeZeroAddress:         staking.ErrZeroAddress,
	api.CodeAmountOverflow:      staking.ErrAmountOverflow,
	api.CodeInsufficientStake:   staking.ErrInsufficientStake,
	api.CodeNoRewards:           staking.ErrNoRewards,
	api.CodeNotOwner:            staking.ErrNotOwner,
	api.CodeRateOutOfRange:      staking.ErrRateOutOfRange,
	api.CodeUnknownPool:         staking.ErrUnknownPool,
	api.CodeReentrantCall:       staking.ErrReentrantCall,
	api.CodeInsufficientBalance: bank.ErrInsufficientBalance,
}

// Unwrap exposes the ledger sentinel matching Code so callers can use
// errors.Is.
func (e *APIError) Unwrap() error { return sentinels[e.Code] }

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

func New(endpoint string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: endpoint %q must be http or https", endpoint)
	}
	c := &Client{base: base, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Deposit(ctx context.Context, pool staking.PoolID, amount *uint256.Int) (api.ReceiptResponse, error) {
	var out api.ReceiptResponse
	err := c.do(ctx, http.MethodPost, poolPath(pool, "deposit"), nil, api.AmountRequest{Amount: amount.Dec()}, &out)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, pool staking.PoolID, amount *uint256.Int) (api.ReceiptResponse, error) {
	var out api.ReceiptResponse
	err := c.do(ctx, http.MethodPost, poolPath(pool, "withdraw"), nil, api.AmountRequest{Amount: amount.Dec()}, &out)
	return out, err
}

func (c *Client) Claim(ctx context.Context, pool staking.PoolID) (api.ReceiptResponse, error) {
	var out api.ReceiptResponse
	err := c.do(ctx, http.MethodPost, poolPath(pool, "claim"), nil, nil, &out)
	return out, err
}

func (c *Client) SetRate(ctx context.Context, pool staking.PoolID, bps uint64) (api.RateChangeResponse, error) {
	var out api.RateChangeResponse
	err := c.do(ctx, http.MethodPut, poolPath(pool, "rate"), nil, api.RateRequest{Bps: bps}, &out)
	return out, err
}

func (c *Client) Rate(ctx context.Context, pool staking.PoolID) (api.RateResponse, error) {
	var out api.RateResponse
	err := c.do(ctx, http.MethodGet, poolPath(pool, "rate"), nil, nil, &out)
	return out, err
}

func (c *Client) Position(ctx context.Context, pool staking.PoolID, user common.Address) (api.PositionResponse, error) {
	var out api.PositionResponse
	err := c.do(ctx, http.MethodGet, poolPath(pool, "positions", user.Hex()), nil, nil, &out)
	return out, err
}

func (c *Client) Pending(ctx context.Context, pool staking.PoolID, user common.Address) (api.PendingResponse, error) {
	var out api.PendingResponse
	err := c.do(ctx, http.MethodGet, poolPath(pool, "positions", user.Hex(), "pending"), nil, nil, &out)
	return out, err
}

func (c *Client) TVL(ctx context.Context) (api.TVLResponse, error) {
	var out api.TVLResponse
	err := c.do(ctx, http.MethodGet, "/v1/tvl", nil, nil, &out)
	return out, err
}

func (c *Client) TVLHistory(ctx context.Context, limit int) ([]api.TVLSnapshotResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []api.TVLSnapshotResponse
	err := c.do(ctx, http.MethodGet, "/v1/tvl/history", query, nil, &out)
	return out, err
}

func (c *Client) Owner(ctx context.Context) (api.OwnerResponse, error) {
	var out api.OwnerResponse
	err := c.do(ctx, http.MethodGet, "/v1/owner", nil, nil, &out)
	return out, err
}

// EventQuery filters Events. Zero values are omitted.
type EventQuery struct {
	Type    string
	Pool    string
	Account string
	After   int64
	Limit   int
}

func (c *Client) Events(ctx context.Context, q EventQuery) ([]api.EventResponse, error) {
	var out []api.EventResponse
	err := c.do(ctx, http.MethodGet, "/v1/events", q.values(), nil, &out)
	return out, err
}

// StreamEvents follows the websocket event feed, calling fn for each record
// until ctx is cancelled, the server closes the stream or fn fails.
func (c *Client) StreamEvents(ctx context.Context, q EventQuery, fn func(api.EventResponse) error) error {
	target := *c.base
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = strings.TrimRight(target.Path, "/") + "/v1/events/stream"
	q.Limit = 0
	target.RawQuery = q.values().Encode()

	opts := &websocket.DialOptions{HTTPClient: &http.Client{Transport: c.http.Transport}}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}
	conn, resp, err := websocket.Dial(ctx, target.String(), opts)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		var evt api.EventResponse
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("client: decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func (q EventQuery) values() url.Values {
	query := url.Values{}
	if q.Type != "" {
		query.Set("type", q.Type)
	}
	if q.Pool != "" {
		query.Set("pool", q.Pool)
	}
	if q.Account != "" {
		query.Set("account", q.Account)
	}
	if q.After > 0 {
		query.Set("after", strconv.FormatInt(q.After, 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	return query
}

func poolPath(pool staking.PoolID, parts ...string) string {
	segments := append([]string{"/v1/pools", url.PathEscape(pool.String())}, parts...)
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload api.ErrorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); decodeErr == nil {
			apiErr.Code = payload.Code
			apiErr.RequestID = payload.RequestID
			if payload.Error != "" {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
