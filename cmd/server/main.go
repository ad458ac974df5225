package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/bridge"
	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/idempotency"
	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/mining"
	"github.com/tmpim/krist/internal/motd"
	"github.com/tmpim/krist/internal/switches"
	"github.com/tmpim/krist/internal/work"
	"github.com/tmpim/krist/internal/ws"
	"github.com/tmpim/krist/pkg/config"
	"github.com/tmpim/krist/pkg/logging"
	"github.com/tmpim/krist/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Krist node")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	store, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := work.NewTracker(store, work.PolicyFromConfig(&cfg.Mining))
	if err := tracker.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize work", zap.Error(err))
	}

	bus := events.NewBus()
	sw := switches.New(store)
	l := ledger.New(database.DB)
	m := motd.New(store, bus)

	services := &api.Services{
		DB:           database,
		Cache:        store,
		Ledger:       l,
		Engine:       mining.NewEngine(database.DB, l, tracker, sw, bus, cfg.Mining.NonceMaxSize),
		Work:         tracker,
		Switches:     sw,
		Motd:         m,
		Bus:          bus,
		Tokens:       events.NewTokens(store, cfg.WebSocket.TokenTTL),
		PublicURL:    cfg.Server.PublicURL,
		NonceMaxSize: cfg.Mining.NonceMaxSize,
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api.NewRouter(services, api.Options{
		SubmitRate:  cfg.Mining.SubmitRate,
		SubmitBurst: cfg.Mining.SubmitBurst,
		Idempotency: idempotency.Options{
			TTL:         cfg.Idempotency.TTL,
			WaitTimeout: cfg.Idempotency.WaitTimeout,
		},
	}).SetupRoutes(router)
	ws.NewGateway(services).SetupRoutes(router)

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { tracker.Run(ctx) })
	run(func() { bus.RunKeepalive(ctx, cfg.WebSocket.KeepaliveInterval) })

	bridgeAddr := fmt.Sprintf("%s:%d", cfg.Bridge.Host, cfg.Bridge.Port)
	run(func() {
		if err := bridge.NewServer(bus, m, sw).ListenAndServe(ctx, bridgeAddr); err != nil {
			logger.Error("Bridge server failed", zap.Error(err))
		}
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	wg.Wait()
	bus.Shutdown()

	logger.Info("Server exited")
}
