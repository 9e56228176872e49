package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clawcart/clawcart/config"
	"github.com/clawcart/clawcart/internal/activities"
	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/database"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/internal/wallet"
	"github.com/clawcart/clawcart/internal/workflows"
	"github.com/clawcart/clawcart/pkg/telemetry"
	pkgtemporal "github.com/clawcart/clawcart/pkg/temporal"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "clawcart-worker",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
		}
	}()

	db, err := database.New(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	temporalClient, err := pkgtemporal.NewClient(pkgtemporal.ClientConfig{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Identity:  "clawcart-worker",
	})
	if err != nil {
		return fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer temporalClient.Close()

	orderSvc := orders.NewService(db)
	notificationStore := notifications.NewStore(db, 50)
	catalog := search.NewCatalog(db)

	var providers []search.Provider
	if cfg.SearchProviderURL != "" {
		providers = append(providers, search.NewHTTPProvider("aggregator", cfg.SearchProviderURL, 15*time.Second))
	}
	searcher := search.NewService(
		search.NewCache(rdb, cfg.SearchCacheTTL),
		search.NewSessionStore(rdb, cfg.SearchSessionTTL),
		catalog,
		providers...,
	)

	var walletProvider wallet.Provider
	if cfg.IsDevelopment() {
		sim := wallet.NewSimProvider(0.01)
		sim.Fund("0x6f1e7a9c41d2b8e3", 500)
		walletProvider = sim
	} else {
		walletProvider = wallet.NewHTTPProvider(cfg.WalletBaseURL, 30*time.Second)
	}

	flowStore := checkout.NewFlowStore(db, cfg.MinStepReliability, cfg.RelearnAfterFailures)
	reasoner := checkout.NewAnthropicReasoner(cfg.AnthropicAPIKey, cfg.ReasonerModel, cfg.ReasonerTimeout)
	newDriver := func(ctx context.Context, productURL string) (checkout.Driver, error) {
		return checkout.OpenRemoteDriver(ctx, cfg.BrowserBaseURL, 30*time.Second)
	}
	engine := checkout.NewEngine(flowStore, reasoner, newDriver, cfg.CheckoutStepBudget, cfg.CheckoutTimeout)

	a := activities.New(db, orderSvc, walletProvider, engine, searcher, catalog, notificationStore)

	purchaseWorker, err := pkgtemporal.NewWorker(temporalClient, pkgtemporal.WorkerConfig{
		TaskQueue:               cfg.PurchaseTaskQueue,
		MaxConcurrentActivities: cfg.PurchaseConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create purchase worker: %w", err)
	}
	purchaseWorker.RegisterWorkflow(workflows.PurchaseWorkflow)
	purchaseWorker.RegisterActivity(a)

	searchWorker, err := pkgtemporal.NewWorker(temporalClient, pkgtemporal.WorkerConfig{
		TaskQueue:               cfg.SearchTaskQueue,
		MaxConcurrentActivities: cfg.SearchConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create search worker: %w", err)
	}
	searchWorker.RegisterWorkflow(workflows.SearchWorkflow)
	searchWorker.RegisterActivity(a)

	slog.Info("starting purchase worker",
		slog.String("task_queue", cfg.PurchaseTaskQueue),
		slog.Int("concurrency", cfg.PurchaseConcurrency),
	)
	slog.Info("starting search worker",
		slog.String("task_queue", cfg.SearchTaskQueue),
		slog.Int("concurrency", cfg.SearchConcurrency),
	)

	workerErr := make(chan error, 2)
	go func() {
		if err := purchaseWorker.Run(nil); err != nil {
			workerErr <- err
		}
	}()
	go func() {
		if err := searchWorker.Run(nil); err != nil {
			workerErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-workerErr:
		return fmt.Errorf("worker error: %w", err)
	case <-sigCh:
	}

	slog.Info("shutting down workers")
	purchaseWorker.Stop()
	searchWorker.Stop()

	return nil
}
