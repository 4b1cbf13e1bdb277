package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/changefeed"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/registry"
	"github.com/angelmondragon/storefront/pkg/pubsub"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.Open(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pingers := map[string]controllers.Pinger{"db": dbClient}
	var closers []io.Closer

	persist, redisClient, err := openSnapshotStore(ctx, cfg, logg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		pingers["redis"] = redisClient
		closers = append(closers, redisClient)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	pingers["pubsub"] = pubsubClient
	closers = append(closers, pubsubClient)

	subscription := pubsubClient.OrderUpdatesSubscription()
	if subscription == nil {
		return errors.New("order updates subscription is not configured")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessions, err := session.NewProvider(ctx, cfg.JWT, persist, cfg.Persistence.SessionKey, logg)
	if err != nil {
		return fmt.Errorf("session provider: %w", err)
	}
	cartStore, err := cart.NewStore(ctx, persist, cfg.Persistence.CartKey, logg)
	if err != nil {
		return fmt.Errorf("cart store: %w", err)
	}
	notes, err := notifications.NewStore(ctx, persist, cfg.Persistence.NotificationsKey, logg)
	if err != nil {
		return fmt.Errorf("notifications store: %w", err)
	}

	feed, err := changefeed.NewPubSubFeed(changefeed.PubSubFeedParams{
		Receiver: subscription,
		Check: func(ctx context.Context) error {
			return pubsubClient.EnsureSubscription(ctx, cfg.PubSub.OrderUpdatesSubscription)
		},
		Decoder: registry.NewConsumerRegistry(),
		Logger:  logg,
	})
	if err != nil {
		return fmt.Errorf("order feed: %w", err)
	}
	subscriber, err := changefeed.NewSubscriber(feed, notes, logg, metrics.NewFeedMetrics(reg))
	if err != nil {
		return fmt.Errorf("feed subscriber: %w", err)
	}

	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		logg,
	)
	if err != nil {
		return fmt.Errorf("orders service: %w", err)
	}
	submitter, err := checkout.NewSubmitter(orderService, cartStore, logg, metrics.NewCheckoutMetrics(reg))
	if err != nil {
		return fmt.Errorf("checkout submitter: %w", err)
	}

	app, err := storefront.New(ctx, storefront.Params{
		Logger:        logg,
		Session:       sessions,
		Cart:          cartStore,
		Notifications: notes,
		Feed:          subscriber,
		Submitter:     submitter,
		Orders:        orderService,
		Closers:       closers,
	})
	if err != nil {
		return fmt.Errorf("storefront: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:     cfg,
			Logger:     logg,
			Storefront: app,
			Orders:     orderService,
			Pingers:    pingers,
			Gatherer:   reg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting storefront server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "http shutdown failed", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		logg.Error(logCtx, "storefront close failed", err)
	}
	logg.Info(logCtx, "storefront stopped")
	return serveErr
}

// openSnapshotStore picks the blob backend for cart, notifications and
// session state. The redis client is returned so the caller can ping and
// close it.
func openSnapshotStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (snapshot.Store, *redis.Client, error) {
	if cfg.Persistence.Driver == "memory" {
		logg.Warn(ctx, "client state is held in memory and lost on restart")
		return snapshot.NewMemoryStore(), nil, nil
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	store, err := snapshot.NewRedisStore(redisClient)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return store, redisClient, nil
}
