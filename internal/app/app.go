package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/config"
	stripegw "github.com/kirinyoku/cinetix/internal/gateway/stripe"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/postgres"
	"github.com/kirinyoku/cinetix/internal/qrcode"
	"github.com/kirinyoku/cinetix/internal/redis"
	postgresrepo "github.com/kirinyoku/cinetix/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/booking"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	"github.com/kirinyoku/cinetix/internal/service/sweep"
	httpgin "github.com/kirinyoku/cinetix/internal/transport/http/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const idempotencyTTL = 24 * time.Hour

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	dispatcher *notify.Dispatcher
	sweeper    *sweep.Scheduler
	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	gin.SetMode(cfg.Server.GinMode)

	// Initialize dependencies
	pool, err := postgres.New(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Name:     cfg.Postgres.Name,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: int32(cfg.Postgres.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to initialize postgres: %w", op, err)
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to initialize redis: %w", op, err)
	}

	sink, err := newNotifier(cfg.Notify)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: failed to initialize notifier: %w", op, err)
	}
	dispatcher := notify.NewDispatcher(sink, 0, logger)

	// Initialize repositories
	store := postgresrepo.NewStore(pool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewSeatMapPubSub(rdb)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, idempotencyTTL)
	globalLimiter := redisrepo.NewSlidingWindowLimiter(
		rdb, redisrepo.KeyRateLimit("global"), cfg.RateLimit.Global, cfg.RateLimit.GlobalWindow,
	)
	paymentLimiter := redisrepo.NewSlidingWindowLimiter(
		rdb, redisrepo.KeyRateLimit("payment"), cfg.RateLimit.Payment, cfg.RateLimit.PaymentWindow,
	)

	gateway := stripegw.New(stripegw.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.GatewayTimeout,
	})

	// Initialize services
	services := service.NewServices(
		store,
		cache,
		pubsub,
		gateway,
		dispatcher,
		qrcode.NewEncoder(cfg.Tickets.QRSize),
		service.Config{
			Booking: booking.Config{
				HoldWindow:      cfg.Tickets.HoldWindow,
				RetentionWindow: cfg.Tickets.RetentionWindow,
				SweepBatch:      cfg.Tickets.SweepBatch,
			},
			Payment: payment.Config{
				Currency:       cfg.Stripe.Currency,
				GatewayTimeout: cfg.Stripe.GatewayTimeout,
			},
		},
		logger,
	)

	sweeper := sweep.New(services.Booking, sweep.Config{
		ExpireInterval: cfg.Tickets.ExpireInterval,
		PurgeInterval:  cfg.Tickets.PurgeInterval,
	}, logger)

	// Initialize Gin router
	authenticator := httpgin.NewAuthenticator(
		auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		auth.NewResolver(store.Catalog()),
	)

	router := httpgin.NewRouter(services, httpgin.Options{
		Auth:           authenticator,
		Idempotency:    idempotencyStore,
		GlobalLimiter:  globalLimiter,
		PaymentLimiter: paymentLimiter,
		SeatEvents:     pubsub,
	}, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		rdb:        rdb,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newNotifier(cfg config.NotifyConfig) (notify.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return notify.NewKafka(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	case "amqp":
		return notify.NewAMQP(notify.AMQPConfig{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue})
	default:
		return notify.Nop{}, nil
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// The dispatcher outlives the server so events of in-flight requests
	// are still delivered.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Background jobs
	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	g.Go(func() error {
		return a.dispatcher.Run(dispatchCtx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		defer stopDispatch()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if err := a.dispatcher.Close(); err != nil {
		a.logger.Warn("failed to close notifier", "error", err)
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("failed to close redis", "error", err)
	}
	a.pool.Close()
}
