package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/clawcart/clawcart/config"
	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/database"
	"github.com/clawcart/clawcart/internal/handlers"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/pkg/telemetry"
	pkgtemporal "github.com/clawcart/clawcart/pkg/temporal"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
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
		ServiceName:    cfg.OTelServiceName,
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
	if cfg.IsDevelopment() {
		if err := database.Seed(db); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	temporalClient, err := pkgtemporal.NewClient(pkgtemporal.ClientConfig{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Identity:  "clawcart-api",
	})
	if err != nil {
		return fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer temporalClient.Close()

	orderSvc := orders.NewService(db)
	sessions := search.NewSessionStore(rdb, cfg.SearchSessionTTL)
	notificationStore := notifications.NewStore(db, 50)
	flowStore := checkout.NewFlowStore(db, cfg.MinStepReliability, cfg.RelearnAfterFailures)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(cfg.OTelServiceName))
	e.Use(middleware.Recover())

	orderHandler := handlers.NewOrderHandler(db, orderSvc, sessions, notificationStore, temporalClient, cfg.PurchaseTaskQueue)
	searchHandler := handlers.NewSearchHandler(db, sessions, temporalClient, cfg.SearchTaskQueue)
	flowHandler := handlers.NewFlowHandler(flowStore)
	notificationHandler := handlers.NewNotificationHandler(notificationStore)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/search", searchHandler.Search)
	e.GET("/sessions/:id", searchHandler.Session)

	e.POST("/orders", orderHandler.Create)
	e.GET("/orders", orderHandler.List)
	e.GET("/orders/:id", orderHandler.Get)
	e.POST("/orders/:id/approve", orderHandler.Approve)
	e.POST("/orders/:id/reject", orderHandler.Reject)
	e.POST("/orders/:id/cancel", orderHandler.Cancel)

	e.GET("/flows", flowHandler.List)
	e.GET("/flows/:domain", flowHandler.Get)
	e.DELETE("/flows/:domain", flowHandler.Delete)

	e.GET("/users/:user_id/notifications", notificationHandler.Recent)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting API server", slog.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
	}

	slog.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
