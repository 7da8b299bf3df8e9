package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/storefront-bot/internal/bot"
	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/clock"
	"github.com/Proton-105/storefront-bot/internal/database"
	"github.com/Proton-105/storefront-bot/internal/delivery"
	"github.com/Proton-105/storefront-bot/internal/engine"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/internal/guard"
	"github.com/Proton-105/storefront-bot/internal/health"
	"github.com/Proton-105/storefront-bot/internal/idempotency"
	"github.com/Proton-105/storefront-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/storefront-bot/internal/jobs/handlers"
	"github.com/Proton-105/storefront-bot/internal/lifecycle"
	"github.com/Proton-105/storefront-bot/internal/payment"
	"github.com/Proton-105/storefront-bot/internal/payment/oracle"
	"github.com/Proton-105/storefront-bot/internal/payment/verifier"
	"github.com/Proton-105/storefront-bot/internal/ratelimit"
	"github.com/Proton-105/storefront-bot/internal/repository"
	"github.com/Proton-105/storefront-bot/internal/restrict"
	"github.com/Proton-105/storefront-bot/internal/state"
	"github.com/Proton-105/storefront-bot/pkg/config"
	"github.com/Proton-105/storefront-bot/pkg/graceful"
	"github.com/Proton-105/storefront-bot/pkg/logger"
	"github.com/Proton-105/storefront-bot/pkg/metrics"
	appredis "github.com/Proton-105/storefront-bot/pkg/redis"
)

const probeTimeout = 3 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.AppEnv}); err != nil {
			slog.Error("failed to init sentry", slog.Any("error", err))
			cfg.Sentry.Enabled = false
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("storefront bot stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("storefront bot shut down")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting storefront bot",
		slog.String("mode", cfg.Bot.Mode),
		slog.Bool("promo_enabled", cfg.Workflow.PromoEnabled),
		slog.Bool("jobs_enabled", cfg.Jobs.Enabled),
	)

	shutdown := lifecycle.NewShutdown(log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	clk := clock.New()

	rdb, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	shutdown.Register(lifecycle.StageStorage, "redis", func(context.Context) error { return rdb.Close() })

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		shutdown.Register(lifecycle.StageStorage, "postgres", func(context.Context) error { return db.Close() })
	}

	provider, err := catalog.Load(cfg.Catalog.Path, log)
	if err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		go func() {
			if err := provider.Watch(ctx); err != nil {
				log.Error("catalog watch stopped", slog.Any("error", err))
			}
		}()
	}

	sessions := state.NewManager(state.NewMemoryStore(), clk, log)
	go state.NewCleaner(sessions, log, cfg.Workflow.SessionTTL, cfg.Workflow.CleanerInterval).Run(ctx)
	go metrics.NewSessionCollector(sessions, 0).Run(ctx)

	rates := oracle.New(oracle.Config{
		BaseURL:        cfg.Payment.OracleURL,
		Fiat:           cfg.Payment.FiatCurrency,
		AttemptTimeout: cfg.Payment.AttemptTimeout,
		MaxAttempts:    cfg.Payment.MaxAttempts,
	}, oracle.NewRedisCache(rdb, cfg.Payment.FiatCurrency, cfg.Payment.RateCacheTTL, log), log)
	chain := verifier.New(cfg.Payment.VerifierURL, cfg.Payment.AttemptTimeout, log)

	var orders *repository.OrderRepository
	var paymentOpts []payment.Option
	if db != nil {
		orders = repository.NewOrderRepository(db, log)
		paymentOpts = append(paymentOpts, payment.WithOrderHistory(orders))
	}

	sink, err := startJobs(cfg, orders, rates, provider, shutdown, log)
	if err != nil {
		return err
	}

	payments := payment.NewService(rates, chain, sink, provider, sessions, cfg.Workflow.PaymentTimeout, log, paymentOpts...)
	shutdown.Register(lifecycle.StageWorkers, "payments", func(context.Context) error {
		payments.Wait()
		return nil
	})

	b, err := bot.New(*cfg, log)
	if err != nil {
		return err
	}
	notifier := b.Notifier(cfg.Bot.TypingDelay)
	restrictions := restrict.NewRedisStore(rdb, log)

	simulator := delivery.NewSimulator(sessions, notifier, restrictions, delivery.Config{
		AutoDelete:      cfg.Workflow.AutoDelete,
		AutoDeleteDelay: cfg.Workflow.AutoDeleteDelay,
		AutoBan:         cfg.Workflow.AutoBan,
		Watchdog:        cfg.Workflow.DeliveryWatchdog,
		IsAdmin:         cfg.Bot.IsAdmin,
	}, log)

	workflow := engine.New(engine.Deps{
		Sessions: sessions,
		Catalog:  provider,
		Payments: payments,
		Delivery: simulator,
		Notifier: notifier,
		Cooldown: guard.NewRedisCooldown(rdb, cfg.Workflow.ConfirmCooldown, log),
		Errors:   errHandler,
	}, engine.Config{
		PromoEnabled:   cfg.Workflow.PromoEnabled,
		PaymentTimeout: cfg.Workflow.PaymentTimeout,
	}, log)

	memoryLimiter := ratelimit.NewMemoryLimiter(clk)
	b.Wire(bot.Deps{
		Workflow:    workflow,
		Idempotency: idempotency.NewRedisStore(rdb, log),
		Limiter:     ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, clk, log), memoryLimiter, log),
		Rules:       ratelimit.NewRules(cfg.RateLimit, cfg.Bot.AdminIDs...),
		Restrict:    restrictions,
		Errors:      errHandler,
	})
	go ratelimit.NewCleaner(rdb, memoryLimiter, clk, log, time.Minute, 10*time.Minute).Run(ctx)

	checker := newChecker(log, rdb, db, b)
	probes := lifecycle.NewProbes(checker, log)
	routes := probes.Routes(probeTimeout)
	routes["/healthz"] = checker.Handler(probeTimeout)
	ops := graceful.NewOpsServer(log, cfg.Server.Port, cfg.Server.ShutdownTimeout, routes)

	opsErr := make(chan error, 1)
	go func() { opsErr <- ops.ListenAndServe(ctx) }()

	go b.Start()
	shutdown.Register(lifecycle.StageIngress, "telegram", func(context.Context) error {
		b.Stop()
		return nil
	})
	shutdown.Register(lifecycle.StageIngress, "probes", func(context.Context) error {
		probes.Drain()
		return nil
	})

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-opsErr:
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, shutdown.Execute(shutdownCtx))
}

// openDatabase connects to postgres and applies migrations. Order persistence is
// optional, so an empty DSN yields a nil handle.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("database dsn not set, orders will not be persisted")
		return nil, nil
	}

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, cfg.Database.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("database migrations applied")
	return db, nil
}

// startJobs returns the sink confirmed orders go to. With the queue enabled,
// orders are written by the worker; otherwise straight to the repository.
func startJobs(
	cfg *config.Config,
	orders *repository.OrderRepository,
	rates *oracle.Client,
	provider catalog.Provider,
	shutdown *lifecycle.Shutdown,
	log *slog.Logger,
) (payment.OrderSink, error) {
	var repo payment.OrderSink
	if orders != nil {
		repo = orders
	}
	if !cfg.Jobs.Enabled {
		return repo, nil
	}

	redisOpt := jobs.RedisOpt(cfg.Redis)

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeRefreshRates, jobhandlers.NewRefreshRatesHandler(rates, provider, log))
	if repo != nil {
		worker.RegisterHandler(jobs.TaskTypeRecordOrder, jobhandlers.NewRecordOrderHandler(repo, log))
	}
	if err := worker.Start(); err != nil {
		return nil, err
	}

	scheduler := jobs.NewScheduler(redisOpt, log)
	if err := scheduler.RegisterRateRefresh(cfg.Jobs.RefreshSpec); err != nil {
		worker.Shutdown()
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		worker.Shutdown()
		return nil, err
	}

	shutdown.Register(lifecycle.StageWorkers, "jobs", func(context.Context) error {
		scheduler.Shutdown()
		worker.Shutdown()
		return nil
	})

	if repo == nil {
		return nil, nil
	}

	queue := jobs.NewManager(redisOpt, log)
	shutdown.Register(lifecycle.StageStorage, "jobs-client", func(context.Context) error { return queue.Close() })
	return jobs.NewOrderQueue(queue, log), nil
}

func newChecker(log *slog.Logger, rdb *redis.Client, db *sql.DB, b *bot.Bot) *health.Checker {
	checker := health.NewChecker(log)
	checker.AddCheck("redis", health.NewRedisChecker(rdb))
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))
	if db != nil {
		checker.AddCheck("postgres", health.NewDBChecker(db))
	}
	return checker
}
