package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nulln0ne/uniswap-funnel/internal/config"
	"github.com/nulln0ne/uniswap-funnel/internal/eth"
	"github.com/nulln0ne/uniswap-funnel/internal/feeregistry"
	"github.com/nulln0ne/uniswap-funnel/internal/funnel"
	"github.com/nulln0ne/uniswap-funnel/internal/handler"
	"github.com/nulln0ne/uniswap-funnel/internal/logging"
	"github.com/nulln0ne/uniswap-funnel/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	app := fiber.New()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ethereumClient, err := eth.Dial(ctx, cfg.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	defer ethereumClient.Close()

	reader, err := eth.NewReader(logger, ethereumClient, cfg.Factory)
	if err != nil {
		return err
	}

	store, err := openFeeStore(cfg.FeeStorePath)
	if err != nil {
		return fmt.Errorf("failed to open fee store: %w", err)
	}
	defer store.Close()

	registry := feeregistry.New(cfg.FeeOwner, store)
	if err := seedFees(logger, registry, cfg); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	quoter := funnel.NewQuoter(logger, reader, registry, metrics.New(reg))

	handler.Register(app,
		handler.NewQuoteHandler(logger, quoter),
		handler.NewFeeHandler(logger, registry),
		reg,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = app.Shutdown()
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return app.ShutdownWithContext(shutdownCtx)
}

func openFeeStore(path string) (ethdb.KeyValueStore, error) {
	if path == "" {
		return memorydb.New(), nil
	}
	return leveldb.New(path, 16, 16, "funnel/fees", false)
}

// seedFees registers the configured defaults for factories that have no
// entry yet. Persisted entries win.
func seedFees(logger *slog.Logger, registry *feeregistry.Registry, cfg *config.Config) error {
	for factory, bps := range cfg.FeeDefaults {
		_, err := registry.Fee(factory)
		if err == nil {
			continue
		}
		if !errors.Is(err, feeregistry.ErrUnknownFactory) {
			return err
		}
		if err := registry.SetFee(cfg.FeeOwner, factory, bps); err != nil {
			return fmt.Errorf("seed fee for %s: %w", factory.Hex(), err)
		}
		logger.Info("fee seeded", slog.String("factory", factory.Hex()), slog.Int("fee_bps", int(bps)))
	}
	return nil
}
