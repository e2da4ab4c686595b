// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/gate"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/issuance"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/order"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/payment"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/render"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/ticketcode"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to a YAML config file")
	memory := flag.Bool("memory", false, "keep state in memory instead of PostgreSQL")
	seed := flag.Bool("seed", false, "create the demo event when the catalogue is empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *seed {
		cfg.Seed = true
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *memory, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, memory bool, logger *zap.Logger) error {
	ctx := context.Background()

	// ── 1. Storage ────────────────────────────────────────────────────────
	var store repository.Store
	if memory {
		store = repository.NewMemoryStore()
		logger.Info("using in-memory store")
	} else {
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		store = repository.NewPostgresStore(pool)
		logger.Info("connected to postgres", zap.String("host", cfg.Database.Host))
	}

	rdb := newRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	var events repository.EventReader = store
	if rdb != nil {
		events = repository.NewCachedEventReader(store, rdb, cfg.Redis.EventTTL, logger)
	}

	// ── 2. Delivery ───────────────────────────────────────────────────────
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		defer kafka.Close()
		notifiers = append(notifiers, kafka)
	}

	renderer, err := render.NewQRFiles(cfg.Render)
	if err != nil {
		return err
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	ledger := inventory.NewLedger(store)
	issuer := issuance.NewIssuer(issuance.IssuerProperty{
		Store:    store,
		Ledger:   ledger,
		Codes:    ticketcode.NewGenerator(),
		Renderer: renderer,
		Notifier: notifiers,
		Logger:   logger,
	})
	orders := order.NewService(order.ServiceProperty{
		Store:  store,
		Ledger: ledger,
		Providers: payment.Providers{
			Stripe: payment.NewStripeCard(cfg.Stripe, cfg.Server.BaseURL, logger),
			Mpesa:  payment.NewMpesaPush(cfg.Mpesa, logger),
			Manual: payment.NewMpesaManual(cfg.Manual),
		},
		Issuer: issuer,
		Logger: logger,
	})
	eventSvc := service.NewEventService(store, events)

	if cfg.Seed {
		seeded, err := eventSvc.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if seeded != nil {
			logger.Info("demo event created", zap.String("event_id", seeded.ID))
		}
	}

	// ── 4. Build the router ───────────────────────────────────────────────
	r := handler.NewRouter(handler.RouterProperty{
		Events:         eventSvc,
		Orders:         orders,
		Gate:           gate.NewValidator(store, logger),
		Redis:          rdb,
		Logger:         logger,
		AdminToken:     cfg.Server.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.GateRateLimit,
		RateWindow:     cfg.Server.RateWindow,
		StaticDir:      renderer.Dir(),
		StaticPrefix:   cfg.Render.URLPrefix,
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newRedis returns nil when Redis is not configured or unreachable; caching
// and rate limiting are then skipped.
func newRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without cache and rate limits",
			zap.String("addr", cfg.Addr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}
