package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veltapay/chainfunnel/internal/api"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/compliance"
	"github.com/veltapay/chainfunnel/internal/config"
	"github.com/veltapay/chainfunnel/internal/db"
	"github.com/veltapay/chainfunnel/internal/dispatch"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"github.com/veltapay/chainfunnel/internal/repository"
	"github.com/veltapay/chainfunnel/internal/service"
	"github.com/veltapay/chainfunnel/internal/worker"
)

// Run bootstraps the deposit pipeline workers and the operational HTTP
// server, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	deposits := repository.NewDepositRepository(pool)
	routes := repository.NewRouteRepository(pool)
	assets := repository.NewAssetRepository(pool)

	oracle := compliance.PassAllOracle{}
	dispatcher := dispatch.LogDispatcher{}

	// Node clients. The in-memory simulator stands in for the chain RPC
	// connections until real node endpoints are wired.
	btcClient := chain.NewSim(800_000)
	dfiClient := chain.NewSim(2_000_000)

	btcScanner := service.NewUtxoScanner(service.UtxoScannerConfig{
		Chain:      models.ChainBitcoin,
		Asset:      "BTC",
		MinDeposit: cfg.BtcMinDeposit,
	}, btcClient, deposits, routes, oracle, dispatcher)

	btcForwarder := service.NewUtxoForwarder(service.UtxoForwarderConfig{
		Chain:                models.ChainBitcoin,
		CollectionAddress:    cfg.BitcoinCollectionAddress,
		FeeRateFloor:         cfg.FeeRateFloor,
		FeeRateCeilingFactor: cfg.FeeRateCeilingFactor,
	}, btcClient, deposits)

	btcConfirm := service.NewConfirmationTracker(models.ChainBitcoin, btcClient, deposits, cfg.BitcoinConfirmations)

	converter := service.NewReferenceConverter(dfiClient, models.ChainDeFiChain, cfg.PeggedAssets)

	dfiScanner := service.NewAccountScanner(service.AccountScannerConfig{
		Chain:              models.ChainDeFiChain,
		NativeAsset:        "DFI",
		NativeMinDeposit:   cfg.NativeMinDeposit,
		UsdMinDeposit:      cfg.UsdMinDeposit,
		UtxoSpenderAddress: cfg.UtxoSpenderAddress,
	}, dfiClient, deposits, routes, assets, oracle, dispatcher, converter)

	dfiForwarder := service.NewAccountForwarderFromConfig(service.AccountForwarderConfig{
		Chain:               models.ChainDeFiChain,
		NativeAsset:         "DFI",
		CollectionAddress:   cfg.AccountCollectionAddress,
		BlockRewardMaturity: cfg.BlockRewardMaturity,
	}, dfiClient, deposits, routes, cfg.UtxoSpenderAddress, cfg.NativeMinDeposit)

	dfiConfirm := service.NewConfirmationTracker(models.ChainDeFiChain, dfiClient, deposits, cfg.AccountConfirmations)

	feeSweeper := service.NewFeeUtxoSweeper(service.FeeUtxoSweeperConfig{
		Chain:              models.ChainDeFiChain,
		UtxoSpenderAddress: cfg.UtxoSpenderAddress,
		NativeMinDeposit:   cfg.NativeMinDeposit,
		MinTxAmount:        cfg.MinTxAmount,
	}, dfiClient)

	tokenConverter := service.NewTokenConverter(service.TokenConverterConfig{
		Chain:             models.ChainDeFiChain,
		NativeAsset:       "DFI",
		UsdMinDeposit:     cfg.UsdMinDeposit,
		CollectionAddress: cfg.AccountCollectionAddress,
		PeggedAssets:      cfg.PeggedAssets,
	}, dfiClient, assets, routes, cfg.UtxoSpenderAddress, cfg.NativeMinDeposit)

	jobs := []*worker.Job{
		worker.NewJob("btc_scan", btcScanner, newLease(redisClient, "btc_scan", cfg.LeaseDuration)).WithInterval(cfg.ScanInterval),
		worker.NewJob("btc_forward", btcForwarder, newLease(redisClient, "btc_forward", cfg.LeaseDuration)).WithInterval(cfg.ForwardInterval),
		worker.NewJob("btc_confirm", btcConfirm, newLease(redisClient, "btc_confirm", cfg.LeaseDuration)).WithInterval(cfg.ConfirmInterval),
		worker.NewJob("dfi_scan", dfiScanner, newLease(redisClient, "dfi_scan", cfg.LeaseDuration)).WithInterval(cfg.ScanInterval),
		worker.NewJob("dfi_forward", dfiForwarder, newLease(redisClient, "dfi_forward", cfg.LeaseDuration)).WithInterval(cfg.ForwardInterval),
		worker.NewJob("dfi_confirm", dfiConfirm, newLease(redisClient, "dfi_confirm", cfg.LeaseDuration)).WithInterval(cfg.ConfirmInterval),
		worker.NewJob("dfi_fee_sweep", feeSweeper, newLease(redisClient, "dfi_fee_sweep", cfg.LeaseDuration)).WithInterval(cfg.FeeSweepInterval),
		worker.NewJob("dfi_token_convert", tokenConverter, newLease(redisClient, "dfi_token_convert", cfg.LeaseDuration)).WithInterval(cfg.TokenConvertInterval),
	}

	stops := make([]func(), 0, len(jobs))
	for _, job := range jobs {
		stops = append(stops, job.Run(ctx))
	}
	logger.Info("pipeline workers started", zap.Int("count", len(jobs)))

	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}
	router := api.NewRouter(pool, redisCmd)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping pipeline workers")
	for _, stop := range stops {
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// newLease picks a distributed lease when redis is configured and falls
// back to a process-local one otherwise.
func newLease(client *redis.Client, name string, duration time.Duration) service.Locker {
	if client != nil {
		return service.NewRedisLease(client, "chainfunnel:lease:"+name, duration)
	}
	return service.NewLease(duration)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
