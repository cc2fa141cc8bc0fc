package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/jcmexdev/marketplace-gateway/contracts"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/config"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/accounts"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/ledger"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/ledger/simnode"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/service"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/cache"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/observability"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/telemetry"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/txjournal/sqlite"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			ServiceName: cfg.OTelServiceName,
			Endpoint:    cfg.OTelEndpoint,
			Environment: cfg.OTelEnvironment,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	client, contractABI, address, closeLedger, err := connectLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	opts := []ledger.Option{ledger.WithObserver(metrics)}
	if cfg.TxJournalPath != "" {
		journal, err := sqlite.Open(cfg.TxJournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, ledger.WithJournal(journal))
		logger.Info("transaction journal enabled", "path", cfg.TxJournalPath)
	}

	contract, err := ledger.New(client, contractABI, ledger.Config{
		Address:      address,
		CallTimeout:  cfg.LedgerCallTimeout,
		TxTimeout:    cfg.LedgerTxTimeout,
		PollInterval: cfg.LedgerReceiptPoll,
	}, opts...)
	if err != nil {
		return err
	}

	// The account pool is listed once; the gateway cannot serve without it.
	resolver, err := accounts.New(ctx, contract, accounts.Config{
		SellerIndex: cfg.SellerAccountIndex,
		BuyerIndex:  cfg.BuyerAccountIndex,
	})
	if err != nil {
		return err
	}
	logger.Info("ledger connected",
		"contract", contract.Address(),
		"accounts", resolver.Size(),
		"seller", resolver.Seller(),
	)

	products, closeCache := productCache(ctx, cfg, logger)
	defer closeCache()

	svc := service.NewMarketplaceService(contract, resolver, products, service.Config{
		Gas: service.GasLimits{
			Create:   cfg.GasLimitCreate,
			Update:   cfg.GasLimitUpdate,
			Purchase: cfg.GasLimitPurchase,
		},
		FanOut: cfg.SellerFanOut,
	})
	handler := httpx.NewHandler(svc, resolver, contract, cfg.Port)
	router := httpx.NewRouter(handler, httpx.RouterOptions{
		Metrics:            metrics,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.HTTPRequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketplace gateway listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// connectLedger dials the configured node, or starts the in-process
// simulated node when LEDGER_SIMULATED is set.
func connectLedger(ctx context.Context, cfg *config.Config) (*rpc.Client, abi.ABI, string, func(), error) {
	if cfg.LedgerSimulated {
		node, err := simnode.New(simnode.Options{})
		if err != nil {
			return nil, abi.ABI{}, "", nil, err
		}
		contractABI, err := ledger.ParseABI(contracts.Marketplace)
		if err != nil {
			node.Close()
			return nil, abi.ABI{}, "", nil, err
		}
		client := node.Client()
		slog.Warn("using the simulated ledger; state is lost on exit")
		return client, contractABI, node.Contract().Hex(), func() {
			client.Close()
			node.Close()
		}, nil
	}

	contractABI, err := ledger.LoadABI(cfg.ContractABIPath)
	if err != nil {
		return nil, abi.ABI{}, "", nil, err
	}
	client, err := ledger.Dial(ctx, cfg.LedgerRPCURL)
	if err != nil {
		return nil, abi.ABI{}, "", nil, err
	}
	return client, contractABI, cfg.ContractAddress, client.Close, nil
}

// productCache connects the Redis read cache when REDIS_ADDR is set. An
// unreachable Redis disables caching rather than failing startup.
func productCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.ProductCache, func()) {
	if cfg.RedisAddr == "" {
		return service.NewProductCache(nil, 0), func() {}
	}
	c := cache.NewRedisCache(cfg.RedisAddr, cfg.OTelServiceName)
	if err := c.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, product cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = c.Close()
		return service.NewProductCache(nil, 0), func() {}
	}
	logger.Info("product cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.ProductCacheTTL)
	return service.NewProductCache(c, cfg.ProductCacheTTL), func() { _ = c.Close() }
}
