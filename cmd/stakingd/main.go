package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"arkenstone/config"
	"arkenstone/core/events"
	"arkenstone/core/genesis"
	"arkenstone/core/state"
	"arkenstone/native/bank"
	"arkenstone/native/staking"
	"arkenstone/native/token"
	"arkenstone/observability/logging"
	"arkenstone/observability/metrics"
	telemetry "arkenstone/observability/otel"
	"arkenstone/services/indexer"
	"arkenstone/services/stakingd/idempotency"
	"arkenstone/services/stakingd/middleware"
	"arkenstone/services/stakingd/server"
	"arkenstone/services/stakingd/snapshots"
	"arkenstone/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export" {
		if err := runExport(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "stakingd export: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./stakingd.toml", "path to stakingd configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "stakingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup("stakingd", cfg.Environment, logging.WithFile(logging.FileSink{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}))
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "stakingd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	owner, err := cfg.OwnerAddress()
	if err != nil {
		return err
	}
	ledgerAddr, err := cfg.LedgerIdentity(owner)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	gdb, err := indexer.Open(cfg.Indexer.DSN)
	if err != nil {
		return err
	}
	idx, err := indexer.New(gdb, logger.With(slog.String("component", "indexer")))
	if err != nil {
		return err
	}
	emitter := events.Fanout{idx}

	base, err := bank.New(cfg.BaseSymbol, state.NewBalances(db, strings.ToLower(cfg.BaseSymbol)), emitter, logger.With(slog.String("component", "bank")))
	if err != nil {
		return err
	}
	arkn, err := token.New(owner, state.NewBalances(db, strings.ToLower(token.Symbol)),
		token.WithEmitter(emitter),
		token.WithLogger(logger.With(slog.String("component", "token"))),
		token.WithMetrics(metrics.Staking()))
	if err != nil {
		return err
	}

	if err := genesis.Apply(ctx, db, cfg.Genesis, owner, base, arkn, logger); err != nil {
		return err
	}
	if err := handOverMinter(ctx, arkn, owner, ledgerAddr); err != nil {
		return fmt.Errorf("hand over minter: %w", err)
	}

	ledger, err := staking.NewLedger(staking.Config{
		Owner:         owner,
		Address:       ledgerAddr,
		Bounds:        staking.RateBounds{MinBps: cfg.Staking.MinRateBps, MaxBps: cfg.Staking.MaxRateBps},
		BaseRateBps:   cfg.Staking.BaseRateBps,
		RewardRateBps: cfg.Staking.RewardRateBps,
	}, arkn, bank.NewVault(base, ledgerAddr), token.NewVault(arkn, ledgerAddr),
		staking.WithStore(state.NewStakingStore(db)),
		staking.WithEmitter(emitter),
		staking.WithLogger(logger.With(slog.String("component", "staking"))))
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	logger.Info("ledger ready",
		slog.String("owner", owner.Hex()),
		slog.String("ledger", ledgerAddr.Hex()))

	if !cfg.Snapshots.Disabled {
		sched := snapshots.New(ctx, ledger, idx, logger.With(slog.String("component", "snapshots")))
		if err := sched.Register(cfg.Snapshots.Schedule); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	var idem *idempotency.Store
	if !cfg.Idempotency.Disabled {
		idem, err = idempotency.Open(cfg.Idempotency.Path,
			idempotency.WithTTL(time.Duration(cfg.Idempotency.TTLHours)*time.Hour))
		if err != nil {
			return err
		}
		defer idem.Close()
	}

	srv, err := server.New(server.Config{
		ListenAddress:  cfg.ListenAddress,
		MaxConnections: cfg.MaxConnections,
		Idempotency:    idem,
		Auth: middleware.AuthConfig{
			HMACSecret: os.Getenv(cfg.Auth.JWTSecretEnv),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		LogRequests: cfg.Environment != "prod",
	}, ledger, idx, logger)
	if err != nil {
		return fmt.Errorf("%w (set %s)", err, cfg.Auth.JWTSecretEnv)
	}
	return srv.ListenAndServe(ctx)
}
