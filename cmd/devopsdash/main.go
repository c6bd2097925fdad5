package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"devopsdash/internal/amqp"
	"devopsdash/internal/backend"
	"devopsdash/internal/cache"
	"devopsdash/internal/cli"
	"devopsdash/internal/core"
	"devopsdash/internal/devops"
	apphttp "devopsdash/internal/http"
	"devopsdash/internal/log"
	"devopsdash/internal/middleware/ratelimit"
	"devopsdash/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Without AMQP the mover applies moves inline.
	var (
		publisher  amqp.Publisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, applying moves inline", log.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	states := cache.NewLRUCache[devops.ProjectStates](cfg.CacheSize, cfg.CacheTTL)
	iterations := cache.NewLRUCache[[]core.Iteration](cfg.CacheSize, cfg.CacheTTL)
	fields := cache.NewLRUCache[[]core.FieldDefinition](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(states)
	caches.Register(iterations)
	caches.Register(fields)
	caches.StartCleanup(cfg.CacheTTL)

	dashboard := services.NewDashboard(states, iterations, fields)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Factory:   res.Factory,
		Dashboard: dashboard,
		Mover:     services.NewMover(repo, publisher),
		Exporter:  services.NewExporter(dashboard, res.Writer),
		Store:     repo,
		Caches:    caches,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitRPM,
			MutatingOnly:      true,
		}),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Error("SQLite close error", log.FieldError, err)
		}
	})

	logger.Info("Starting devopsdash server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
