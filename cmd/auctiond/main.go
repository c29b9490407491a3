package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	mysqlstore "auction-engine/internal/infrastructure/mysql"
	redisinfra "auction-engine/internal/infrastructure/redis"
	wsinfra "auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting auction engine")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "summary", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// MySQL: the durable store and single source of truth.
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("Failed to open MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to MySQL")

	// Redis: outbound event transport only, never on the write path.
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	clk := clock.NewSystem()

	store := mysqlstore.NewAuctionRepository(db, clk)
	if err := store.Migrate(ctx); err != nil {
		log.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	cacheStore := cache.New(map[cache.Kind]time.Duration{
		cache.KindAuction:  cfg.Cache.AuctionTTL,
		cache.KindBids:     cfg.Cache.BidsTTL,
		cache.KindBidCount: cfg.Cache.BidsTTL,
		cache.KindActor:    cfg.Cache.ActorTTL,
	}, clk, log)

	connManager := wsinfra.NewConnectionManager(log)
	dispatcher := services.NewEventDispatcher([]domain.Notifier{
		redisinfra.NewEventPublisher(rdb, cfg.Redis.Channel),
		wsinfra.NewLiveFeedNotifier(connManager),
	}, cfg.Events.DeliveryTimeout, log)
	dispatcher.Start()

	guard := services.NewActorGuard(clk)

	lifecycle := services.NewLifecycleManager(store, cacheStore, dispatcher, clk, services.LifecycleConfig{
		SweepInterval:   cfg.Auctions.SweepInterval,
		RecheckInterval: cfg.Auctions.RecheckInterval,
		RetryAttempts:   cfg.Bids.RetryAttempts,
		RetryBackoff:    cfg.Bids.RetryBackoff,
	}, log)

	auctionManager := services.NewAuctionManager(store, cacheStore, lifecycle, clk, services.AuctionManagerConfig{
		MinDuration:         cfg.Auctions.MinDuration,
		MaxDuration:         cfg.Auctions.MaxDuration,
		DefaultMinIncrement: cfg.Auctions.DefaultMinIncrement,
	}, log)

	bidService := services.NewBidService(store, cacheStore, guard, dispatcher, clk, services.BidServiceConfig{
		Cooldown:      cfg.Bids.Cooldown,
		QuickCooldown: cfg.Bids.QuickCooldown,
		RetryAttempts: cfg.Bids.RetryAttempts,
		RetryBackoff:  cfg.Bids.RetryBackoff,
	}, log)

	// Recovery sweep + periodic catch-up.
	if err := lifecycle.Start(context.Background()); err != nil {
		log.Error("Failed to start lifecycle manager", "error", err)
		os.Exit(1)
	}

	// Cooperative cache sweep.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go cacheStore.Run(sweepCtx, cfg.Cache.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	handler := handlers.NewAuctionHandler(auctionManager, bidService, connManager, log)
	handler.Register(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-engine",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("Auction engine listening", "address", serverAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake first so in-flight requests cannot reach components that
	// are already shut down.
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	lifecycle.Stop()
	stopSweep()
	dispatcher.Stop()
	connManager.CloseAll()
	guard.Reset()
	cacheStore.Clear()

	log.Info("Auction engine stopped")
}
