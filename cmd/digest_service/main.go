package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/famline/notifications/internal/digest_service/adapters/ai"
	"github.com/famline/notifications/internal/digest_service/app"
	digestpg "github.com/famline/notifications/internal/digest_service/repository/postgres"
	notifpg "github.com/famline/notifications/internal/notification_service/repository/postgres"
	"github.com/famline/notifications/internal/platform/config"
	"github.com/famline/notifications/internal/platform/database"
	"github.com/famline/notifications/internal/platform/logger"
	"github.com/famline/notifications/internal/platform/ratelimit"
	"github.com/famline/notifications/internal/platform/redisclient"
)

const (
	serviceName     = "digest-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...")

	if err := database.RunMigrations(cfg.PostgresDSN, log); err != nil {
		log.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewPostgresPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	redisClient, err := redisclient.New(mainCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info("Redis connection initialized")

	limiter := ratelimit.New(redisClient, "famline", log)

	scheduleRepo := digestpg.NewPgScheduleRepository(dbPool, log)
	digestRepo := digestpg.NewPgDigestRepository(dbPool, log)
	contentReader := digestpg.NewPgContentItemReader(dbPool, log)
	memberDirectory := digestpg.NewPgRecipientDirectory(dbPool, log)
	jobRepo := notifpg.NewPgJobRepository(dbPool, log)

	narrativeProvider := ai.NewHTTPProvider(log, cfg.AIProviderURL, cfg.AIProviderKey, nil)

	compiler := app.NewCompiler(
		digestRepo,
		contentReader,
		memberDirectory,
		jobRepo,
		narrativeProvider,
		limiter,
		log,
		app.CompilerConfig{AITimeout: cfg.AITimeout},
	)

	poller := app.NewPoller(scheduleRepo, compiler, log, app.PollerConfig{
		PollInterval: cfg.DigestPollInterval,
		BatchSize:    cfg.DigestBatchSize,
		ClaimLease:   cfg.DigestClaimLease,
	})

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return poller.Run(groupCtx)
	})
	log.Info("Digest poller started", "poll_interval", cfg.DigestPollInterval, "claim_lease", cfg.DigestClaimLease)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	g.Go(func() error {
		log.Info("Starting metrics server", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	log.Info("Service components initialized. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case <-groupCtx.Done():
		log.Error("A critical component failed, initiating shutdown")
	}

	mainCancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Error during graceful shutdown", "error", err)
	}
	log.Info("Service shutdown complete.")
}
