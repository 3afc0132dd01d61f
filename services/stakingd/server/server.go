// Package server exposes the staking ledger over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"arkenstone/native/staking"
	"arkenstone/services/indexer"
	"arkenstone/services/stakingd/idempotency"
	"arkenstone/services/stakingd/middleware"
)

// Ledger is the subset of the staking ledger served over HTTP.
type Ledger interface {
	Owner() common.Address
	Address() common.Address
	RateBounds() staking.RateBounds
	Deposit(ctx context.Context, pool staking.PoolID, user common.Address, amount *uint256.Int) (staking.Receipt, error)
	Withdraw(ctx context.Context, pool staking.PoolID, user common.Address, amount *uint256.Int) (staking.Receipt, error)
	Claim(ctx context.Context, pool staking.PoolID, user common.Address) (staking.Receipt, error)
	SetRate(ctx context.Context, caller common.Address, pool staking.PoolID, bps uint64) (staking.RateChange, error)
	Rate(ctx context.Context, pool staking.PoolID) (uint64, error)
	Position(ctx context.Context, pool staking.PoolID, user common.Address) (staking.PositionView, error)
	PendingReward(ctx context.Context, pool staking.PoolID, user common.Address) (*uint256.Int, error)
	TVL(ctx context.Context) staking.TVL
}

// Records is the indexer surface backing the history endpoints.
type Records interface {
	Query(ctx context.Context, filter indexer.Filter) ([]indexer.Record, error)
	Snapshots(ctx context.Context, limit int) ([]indexer.TVLSnapshot, error)
	Subscribe() (<-chan indexer.Record, func())
}

type Config struct {
	ListenAddress string
	Auth          middleware.AuthConfig
	RateLimit     middleware.RateLimit
	LogRequests   bool
	ShutdownGrace time.Duration
	// MaxConnections caps concurrently accepted connections. Zero means
	// unlimited.
	MaxConnections int
	// Idempotency, when set, replays mutating responses for repeated
	// Idempotency-Key headers.
	Idempotency *idempotency.Store
}

type Server struct {
	cfg     Config
	ledger  Ledger
	records Records
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	idem    *idempotency.Guard
	handler http.Handler
}

func New(cfg Config, ledger Ledger, records Records, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := middleware.NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		ledger:  ledger,
		records: records,
		logger:  logger,
		auth:    auth,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.LogRequests}, logger),
	}
	if cfg.Idempotency != nil {
		s.idem = idempotency.NewGuard(cfg.Idempotency, logger)
	}
	s.handler = otelhttp.NewHandler(s.routes(), "stakingd")
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.obs.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Get("/owner", s.handleOwner)
			r.Get("/tvl", s.handleTVL)
			r.Get("/tvl/history", s.handleTVLHistory)
			r.Get("/events", s.handleEvents)
			r.Get("/events/stream", s.handleEventStream)
			r.Get("/pools/{pool}/rate", s.handleGetRate)
			r.Get("/pools/{pool}/positions/{addr}", s.handlePosition)
			r.Get("/pools/{pool}/positions/{addr}/pending", s.handlePending)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware)
			if s.idem != nil {
				r.Use(s.idem.Middleware)
			}
			r.Post("/pools/{pool}/deposit", s.handleDeposit)
			r.Post("/pools/{pool}/withdraw", s.handleWithdraw)
			r.Post("/pools/{pool}/claim", s.handleClaim)
			r.Put("/pools/{pool}/rate", s.handleSetRate)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the API on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("stakingd listening",
			slog.String("address", ln.Addr().String()),
			slog.Int("max_connections", s.cfg.MaxConnections))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
