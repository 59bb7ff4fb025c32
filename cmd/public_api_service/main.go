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

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/famline/notifications/internal/digest_service/adapters/ai"
	digestapp "github.com/famline/notifications/internal/digest_service/app"
	digestpg "github.com/famline/notifications/internal/digest_service/repository/postgres"
	"github.com/famline/notifications/internal/notification_service/app"
	"github.com/famline/notifications/internal/notification_service/breaker"
	notifpg "github.com/famline/notifications/internal/notification_service/repository/postgres"
	"github.com/famline/notifications/internal/platform/config"
	"github.com/famline/notifications/internal/platform/database"
	"github.com/famline/notifications/internal/platform/logger"
	"github.com/famline/notifications/internal/platform/ratelimit"
	"github.com/famline/notifications/internal/platform/redisclient"
	httptransport "github.com/famline/notifications/internal/public_api_service/transport/http"
)

const (
	serviceName     = "public-api-service"
	shutdownTimeout = 10 * time.Second
	healthWindow    = 24 * time.Hour
)

var deliveryChannels = []string{"email", "sms", "whatsapp", "push"}

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
	validate := validator.New(validator.WithRequiredStructEnabled())

	jobRepo := notifpg.NewPgJobRepository(dbPool, log)
	logRepo := notifpg.NewPgDeliveryLogRepository(dbPool, log)
	scheduleRepo := digestpg.NewPgScheduleRepository(dbPool, log)
	digestRepo := digestpg.NewPgDigestRepository(dbPool, log)
	contentReader := digestpg.NewPgContentItemReader(dbPool, log)
	memberDirectory := digestpg.NewPgRecipientDirectory(dbPool, log)

	// Breaker state lives in the worker processes, so this registry only
	// reports unobserved channels as closed in the queue-health snapshot.
	breakerRegistry := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.BreakerFailThreshold,
		Cooldown:         cfg.BreakerCooldown,
		MaxCooldown:      cfg.BreakerMaxCooldown,
		ProbeSuccesses:   cfg.BreakerProbeSuccesses,
	}, log)
	healthReporter := app.NewHealthReporter(jobRepo, logRepo, breakerRegistry, deliveryChannels, healthWindow, log)

	narrativeProvider := ai.NewHTTPProvider(log, cfg.AIProviderURL, cfg.AIProviderKey, nil)
	compiler := digestapp.NewCompiler(
		digestRepo,
		contentReader,
		memberDirectory,
		jobRepo,
		narrativeProvider,
		limiter,
		log,
		digestapp.CompilerConfig{AITimeout: cfg.AITimeout},
	)

	jobHandler := httptransport.NewJobHandler(jobRepo, logRepo, healthReporter, log, validate)
	digestHandler := httptransport.NewDigestHandler(scheduleRepo, digestRepo, compiler, log, validate)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		JWTAccessSecret: cfg.JWTAccessSecret,
		Limiter:         limiter,
		JobHandler:      jobHandler,
		DigestHandler:   digestHandler,
		Logger:          log,
	})

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PublicAPIPort),
		Handler: router,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting API server", "address", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
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
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
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
