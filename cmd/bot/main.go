package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/config"
	"github.com/vitos/crypto_move_tracker/internal/infrastructure/exchange"
	"github.com/vitos/crypto_move_tracker/internal/infrastructure/logger"
	"github.com/vitos/crypto_move_tracker/internal/infrastructure/notifier"
	"github.com/vitos/crypto_move_tracker/internal/infrastructure/storage"
	"github.com/vitos/crypto_move_tracker/internal/usecase"
	"github.com/vitos/crypto_move_tracker/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Init Logger
	var zapLogger *zap.Logger
	if cfg.Logging.File != "" {
		zapLogger, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		zapLogger, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting movement tracker",
		zap.Float64("threshold_pct", cfg.Detector.ThresholdPct),
		zap.Duration("window", cfg.Detector.Window()),
		zap.Int("group_size", cfg.Detector.GroupSize),
		zap.Bool("testnet", cfg.Exchange.Testnet),
		zap.Bool("execution", cfg.Execution.Enabled),
		zap.String("api_key", cfg.MaskedAPIKey()),
	)

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		zapLogger.Fatal("Failed to init storage", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange, Feed and Notifier
	binance := exchange.NewBinanceFutures(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, zapLogger)

	wsURL := cfg.Exchange.WSEndpoint
	if wsURL == "" {
		wsURL = exchange.BinanceWSURL
		if cfg.Exchange.Testnet {
			wsURL = exchange.BinanceTestnetWSURL
		}
	}
	feed := exchange.NewStreamFeed(wsURL, zapLogger)

	tg := notifier.NewTelegram(notifier.TelegramConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
	}, zapLogger)
	if !tg.Enabled() {
		zapLogger.Warn("Telegram is not configured, alerts will only be logged")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Init Execution (optional)
	var (
		registry  *usecase.PositionRegistry
		executor  *usecase.PositionExecutor
		submitter usecase.SignalSubmitter
		positions web.PositionLister
	)
	if cfg.Execution.Enabled {
		registry = usecase.NewPositionRegistry()
		executor = usecase.NewPositionExecutor(binance, registry, usecase.ExecutorConfig{
			Leverage:      cfg.Execution.Leverage,
			Margin:        cfg.Execution.Margin,
			StopLossPct:   cfg.Execution.StopLossPct,
			TakeProfitPct: cfg.Execution.TakeProfitPct,
			VolumeCeiling: cfg.Execution.VolumeCeiling,
			Workers:       cfg.Execution.Workers,
			QueueSize:     cfg.Execution.QueueSize,
		}, zapLogger)
		executor.Start(ctx)

		enforcer := usecase.NewTimeoutEnforcer(binance, registry, cfg.Execution.MaxHolding(), cfg.Execution.EnforcerInterval(), zapLogger)
		go enforcer.Run(ctx)

		submitter = executor
		positions = registry
	}

	// 6. Init Services
	monitor := usecase.NewTradeMonitor(feed, tg, store, usecase.MonitorConfig{
		Ladder:      cfg.Ladder(),
		Duration:    cfg.Monitor.Session(),
		RecvTimeout: cfg.Monitor.RecvTimeout(),
	}, zapLogger)

	dispatcher := usecase.NewSignalDispatcher(ctx, tg, monitor, submitter, zapLogger)

	manager := usecase.NewStreamGroupManager(feed, dispatcher, usecase.GroupConfig{
		GroupSize:      cfg.Detector.GroupSize,
		Window:         cfg.Detector.Window(),
		ThresholdPct:   cfg.Detector.ThresholdPct,
		WindowCapacity: cfg.Detector.WindowCapacity,
		RecvTimeout:    cfg.Detector.RecvTimeout(),
	}, zapLogger)

	supervisor := usecase.NewSupervisor(binance, manager, usecase.SupervisorConfig{
		QuoteAsset:     cfg.Exchange.QuoteAsset,
		ExcludeSymbols: cfg.Exchange.ExcludeSymbols,
		Cycle:          cfg.Detector.Cycle(),
		RetryBackoff:   cfg.Detector.RetryBackoff(),
	}, zapLogger)

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()

	// 7. Start Web Server
	server := web.NewServer(cfg.Server.Port, store, positions, dispatcher, zapLogger)
	go func() {
		if err := server.Start(); err != nil {
			zapLogger.Fatal("Web server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zapLogger.Info("Shutting down...")
	cancel()

	<-supervisorDone
	dispatcher.Wait()
	if executor != nil {
		executor.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server shutdown failed", zap.Error(err))
	}
	if registry != nil && registry.Len() > 0 {
		zapLogger.Warn("Exiting with open positions", zap.Int("count", registry.Len()))
	}
}
