package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apkrelay/docs"
	"apkrelay/internal/artifact"
	"apkrelay/internal/config"
	"apkrelay/internal/database"
	"apkrelay/internal/database/migration"
	handlers "apkrelay/internal/http/handler"
	"apkrelay/internal/http/middleware"
	"apkrelay/internal/logger"
	apkotel "apkrelay/internal/otel"
	"apkrelay/internal/remote"
	"apkrelay/internal/repository"
	"apkrelay/internal/repository/filestore"
	"apkrelay/internal/repository/postgres"
	"apkrelay/internal/repository/redisstore"
	"apkrelay/internal/service"
	"apkrelay/internal/signer"
	"apkrelay/internal/storage"
	"apkrelay/internal/worker"
)

// multipart framing on top of the artifact itself
const bodyOverhead = units.MiB

// @title APK Relay API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := apkotel.Init(ctx, apkotel.OptionsFromEnv("apkrelay"), log)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openHistory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer closeRepo()

	objStore, err := storage.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize object storage: %w", err)
	}
	artifacts := artifact.NewManager(objStore, artifact.Options{
		Prefix:       cfg.Storage.Prefix,
		SpoolDir:     cfg.Handoff.SpoolDir,
		MaxSize:      cfg.Handoff.MaxUploadSize,
		PresignTTL:   cfg.Storage.PresignTTL,
		FetchTimeout: cfg.BrowserStack.Timeout,
		FetchRetries: cfg.BrowserStack.RetryMax,
	}, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(reg)

	pool := worker.NewPool(cfg.Handoff.Workers, cfg.Handoff.QueueSize, log)
	handoffSvc := service.NewHandoffService(repo, artifacts, remote.New(cfg.BrowserStack, log), pool, service.HandoffOptions{
		MaxUploadSize:    cfg.Handoff.MaxUploadSize,
		TransferTimeout:  cfg.Handoff.TransferTimeout,
		TerminalRetryMax: cfg.Handoff.TerminalRetryMax,
		URLPassthrough:   cfg.BrowserStack.URLPassthrough,
	}, metrics, log)
	historySvc := service.NewHistoryService(repo, artifacts, log)
	sweeper := service.NewSweeper(repo, artifacts, cfg.Handoff.StuckRecordTimeout, cfg.Handoff.SweepInterval, metrics, log)

	promMW, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             bodyLimit(cfg.Handoff.MaxUploadSize),
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// Access log on stdout with timestamps in TZ
	app.Use(middleware.LoggerWithWriter(os.Stdout, cfg.Location()))
	app.Use(promMW.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	handlers.RegisterRoutes(app, handlers.Deps{
		History: historySvc,
		Handoff: handoffSvc,
		Signer:  signer.New(cfg.Cloudinary),
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	// Background work outlives requests; it stops on Shutdown, not on ctx.
	go func() {
		if err := pool.Run(context.Background()); err != nil {
			log.Error("worker pool stopped", zap.Error(err))
		}
	}()
	if sweeper.Enabled() {
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("stuck record sweeper stopped", zap.Error(err))
			}
		}()
	}

	listenErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server listening", zap.String("addr", addr), zap.String("history_driver", cfg.History.Driver))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("handoffs still running at shutdown were cancelled",
			zap.Int("pending", pool.Pending()), zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

// openHistory builds the backend selected by HISTORY_DRIVER.
func openHistory(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (repository.UploadRepository, func(), error) {
	switch cfg.History.Driver {
	case "file", "":
		st, err := filestore.Open(cfg.History.Dir, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewUploadPostgres(db), func() { _ = db.Close() }, nil
	case "redis":
		rdb, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(rdb, cfg.Redis.KeyPrefix, log), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown history driver %q", cfg.History.Driver)
	}
}

func bodyLimit(maxUpload int64) int {
	limit := maxUpload + bodyOverhead
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(limit)
}
