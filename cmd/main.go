package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/bot"
	"github.com/UnknownOlympus/janus/internal/config"
	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/portal"
	"github.com/UnknownOlympus/janus/internal/ratelimit"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/UnknownOlympus/janus/internal/repository/memory"
	"github.com/UnknownOlympus/janus/internal/repository/sqlite"
	"github.com/UnknownOlympus/janus/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	store, checks, closeStore, err := openStore(ctx, logger, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	defer closeStore()

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.Redis.Addr != "" {
		redisClient, redisErr := ratelimit.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			log.Fatalf("Failed to connect to Redis: %v", redisErr)
		}
		defer redisClient.Close()
		limiter = ratelimit.NewRedis(redisClient, cfg.RateLimit.Attempts, cfg.RateLimit.Window)
		checks["redis"] = server.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		logger.WarnContext(ctx, "Redis address is empty, login rate limiting is disabled")
	}

	issuer := auth.NewAccessCodeIssuer(logger, store, appMetrics, cfg.Auth)
	broker := auth.NewLoginCodeBroker(logger, store, store, issuer, appMetrics, cfg.Auth)
	sessions := auth.NewSessionManager(logger, store, store, appMetrics, cfg.Auth)

	deps := portal.Deps{
		Sessions: sessions,
		Codes:    broker,
		Clients:  issuer,
		Store:    store,
		Limiter:  limiter,
		Metrics:  appMetrics,
	}

	var telegramBot *bot.Bot
	if cfg.Telegram.Token != "" {
		telegramBot, err = bot.NewBot(logger, broker, appMetrics, cfg.Telegram.Token, cfg.Telegram.PollerTimeout)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}
		notifier := telegramBot.Notifier()
		broker.SetNotifier(notifier, telegramBot.CodeMessage)
		deps.Notifier = notifier
	} else {
		logger.WarnContext(ctx, "Telegram token is empty, the bot and Telegram login are disabled")
	}

	portalServer := portal.NewServer(logger, deps, portal.Config{
		AdminToken:     cfg.HTTP.AdminToken,
		AdminChats:     cfg.Telegram.AdminChats,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	var wg sync.WaitGroup
	if telegramBot != nil {
		go telegramBot.Start()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		server.StartMonitoringServer(ctx, logger, reg, checks, cfg.MonitoringPort)
	}()
	go func() {
		defer wg.Done()
		logger.InfoContext(ctx, "Starting portal server", "port", cfg.HTTP.Port)
		server.Serve(ctx, logger, "portal", &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           portalServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
		})
	}()

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	if telegramBot != nil {
		telegramBot.Stop()
	}
	wg.Wait()

	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// openStore connects the configured storage backend. The returned checks always contain
// the "database" health check.
func openStore(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
) (repository.Store, map[string]server.Pinger, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dtb, err := repository.NewDatabase(ctx, repository.PoolOptions{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err = repository.Migrate(ctx, dtb); err != nil {
			dtb.Close()
			return nil, nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return repository.NewRepository(dtb), map[string]server.Pinger{"database": dtb}, dtb.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("Failed to close sqlite store", "error", closeErr)
			}
		}
		return store, map[string]server.Pinger{"database": store}, closeFn, nil

	default:
		logger.WarnContext(ctx, "Using the in-memory store, all data is lost on restart")
		noop := server.PingFunc(func(context.Context) error { return nil })
		return memory.New(), map[string]server.Pinger{"database": noop}, func() {}, nil
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	dropTime := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return a
	}

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelWarn,
				ReplaceAttr: dropTime,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelError,
				ReplaceAttr: dropTime,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
