package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/idempotency"
	"github.com/sudo-init-do/gigmarket/internal/ledger"
	"github.com/sudo-init-do/gigmarket/internal/logging"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	mware "github.com/sudo-init-do/gigmarket/internal/middleware"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool, log); err != nil {
		return err
	}
	store := ledger.New(pool, cfg.Notify.Channel)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
	} else {
		log.Warn("REDIS_ADDR not set, purchase idempotency disabled")
	}
	keys := idempotency.New(rdb, cfg.Idempotency.TTL, log)

	// Notification pipeline: outbox row + pg_notify -> listener -> queue -> mailer.
	// Listeners claim rows by deleting them, so each replica can run one.
	var (
		queue        alerts.Queue
		listenerDone = make(chan struct{})
	)
	listenCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	if cfg.Notify.Enabled {
		mailer, err := alerts.NewMailer(cfg.Mail, log)
		if err != nil {
			return err
		}
		switch cfg.Notify.Queue {
		case "redis":
			queue = alerts.NewAsynqQueue(asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}, mailer, log, cfg.Notify.Workers)
		default:
			queue = alerts.NewDispatcher(mailer, log, cfg.Notify.QueueSize, cfg.Notify.Workers)
		}
		if err := queue.Start(); err != nil {
			return err
		}

		listener := alerts.NewListener(alerts.PgConnect(cfg.Database.DSN()), cfg.Notify.Channel, queue, cfg.Notify.RetryDelay, log)
		go func() {
			defer close(listenerDone)
			listener.Run(listenCtx)
		}()
	} else {
		close(listenerDone)
		log.Info("notifications disabled")
	}

	svc := marketplace.NewService(store, log,
		marketplace.WithMaxPending(cfg.Orders.MaxPending),
		marketplace.WithTxTimeout(cfg.Orders.TxTimeout),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logging.RequestLogger(log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "gigmarket"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		rctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(rctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		if rdb != nil {
			if err := keys.Ping(rctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "redis unreachable"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	marketplace.NewHandler(svc, keys, log).Register(e, mware.JWTMiddleware(cfg.Auth.JWTSecret))

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	stopListener()
	<-listenerDone
	if queue != nil {
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error("notification queue shutdown", zap.Error(err))
		}
	}
	log.Info("shutdown complete")
	return nil
}
