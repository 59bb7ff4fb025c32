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

	"github.com/famline/notifications/internal/platform/config"
	"github.com/famline/notifications/internal/platform/database"
	"github.com/famline/notifications/internal/platform/logger"
	"github.com/famline/notifications/internal/platform/messagebroker"
	"github.com/famline/notifications/internal/notification_service/adapters/channel"
	"github.com/famline/notifications/internal/notification_service/app"
	"github.com/famline/notifications/internal/notification_service/breaker"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository/postgres"
)

const (
	serviceName     = "delivery-service"
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

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	log.Info("NATS connection initialized")

	jobRepo := postgres.NewPgJobRepository(dbPool, log)

	breakerRegistry := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.BreakerFailThreshold,
		Cooldown:         cfg.BreakerCooldown,
		MaxCooldown:      cfg.BreakerMaxCooldown,
		ProbeSuccesses:   cfg.BreakerProbeSuccesses,
	}, log)
	breakerRegistry.OnStateChange(app.BreakerGaugeHook())

	senders := channel.NewRegistry()
	senders.Register(domain.MethodEmail, channel.NewEmailProvider(log, cfg.EmailProviderURL, cfg.EmailProviderKey, cfg.EmailFromAddress, nil))
	senders.Register(domain.MethodSMS, channel.NewSMSProvider(log, cfg.SMSProviderURL, cfg.SMSProviderKey, cfg.SMSSenderID, nil))
	senders.Register(domain.MethodWhatsApp, channel.NewWhatsAppProvider(log, cfg.WhatsAppProviderURL, cfg.WhatsAppProviderKey, nil))
	senders.Register(domain.MethodPush, channel.NewPushProvider(log))

	workerCfg := app.WorkerConfig{
		PollInterval:        cfg.WorkerPollInterval,
		BatchSize:           cfg.WorkerBatchSize,
		SendTimeout:         cfg.SendTimeout,
		BreakerRequeueDelay: cfg.BreakerRequeueDelay,
	}
	backoff := domain.BackoffPolicy{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay}

	consumer := app.NewEventConsumer(jobRepo, natsClient, log)

	g, groupCtx := errgroup.WithContext(mainCtx)

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		worker := app.NewDeliveryWorker(jobRepo, senders, breakerRegistry, backoff, log.With("worker", i), workerCfg)
		g.Go(func() error {
			return worker.Run(groupCtx)
		})
	}
	log.Info("Delivery workers started", "count", workerCount, "poll_interval", workerCfg.PollInterval)

	if err := consumer.Start(groupCtx); err != nil {
		log.Error("Failed to start event consumer", "error", err)
		os.Exit(1)
	}

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

	log.Info("Service components initialized and workers started. Service is ready.")

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
