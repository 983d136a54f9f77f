package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-seat-locking/internal/config"
	"github.com/iliyamo/cinema-seat-locking/internal/database"
	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
	"github.com/iliyamo/cinema-seat-locking/internal/router"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenWithRetry(cfg.DB, 10, 3*time.Second, func(attempt int, err error) {
		log.Warn("mysql not ready", "attempt", attempt, "error", err)
	})
	if err != nil {
		log.Error("mysql connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		if cfg.LockStore == config.LockStoreRedis {
			log.Error("redis is required for LOCK_STORE=redis", "error", err)
			os.Exit(1)
		}
		log.Warn("redis unavailable, rate limiting disabled", "error", err)
	} else {
		defer rdb.Close()
	}

	var locks service.LockStore
	switch cfg.LockStore {
	case config.LockStoreRedis:
		locks = repository.NewRedisSeatLockRepo(rdb, cfg.RedisPrefix)
	default:
		locks = repository.NewSeatLockRepo(db)
	}
	seats := repository.NewSeatRepo(db)
	reservations := repository.NewReservationRepo(db)

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(queue.BrokerURL(), log)
		defer pub.Close()
		events = pub
	}

	lockSvc := service.NewSeatLockService(locks, seats, reservations, events, log, service.Policy{LeaseDuration: cfg.LockLease})
	bookingSvc := service.NewBookingService(locks, reservations, seats, events, log)

	sweeper := service.NewSweeper(locks, service.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatch,
	}, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.AuditLogDir != "" {
		consumer := &queue.AuditConsumer{URL: queue.BrokerURL(), Dir: cfg.AuditLogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	e := newServer(log)
	var limiter echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	}
	health := &handler.HealthHandler{DB: db}
	if rdb != nil {
		health.Redis = rdb
	}
	router.RegisterRoutes(e, router.Handlers{
		Locks:   handler.NewSeatLockHandler(lockSvc, log, cfg.LockLease),
		Booking: handler.NewBookingHandler(bookingSvc, log),
		Health:  health,
	}, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "lock_store", cfg.LockStore)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
}

// newServer builds the Echo instance with request ids, panic recovery and
// structured request logging.
func newServer(log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	return e
}
