package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"

	"casegate/internal/api"
	"casegate/internal/compliance"
	"casegate/internal/config"
	"casegate/internal/logging"
	"casegate/internal/metrics"
	"casegate/internal/signature"
	"casegate/internal/storage"
	appTemporal "casegate/internal/temporal"
	"casegate/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("build logger", "error", err)
		os.Exit(1)
	}
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		fatal("connect postgres", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		fatal("postgres ping", err)
	}
	if err := store.Migrate(ctx); err != nil {
		fatal("migrate schema", err)
	}

	archive, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.EventBucket)
	if err != nil {
		fatal("connect minio", err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		fatal("connect temporal", err)
	}
	defer temporalClient.Close()

	collector := metrics.NewCollector(cfg.MetricsNamespace, prometheus.NewRegistry())
	engine := compliance.NewEngine(store, collector, logger)
	reconciler := compliance.NewReconciler(store, engine, store, collector, logger)

	bus := webhook.NewBus(logger, collector)
	bus.Subscribe("ingest", webhook.NewIngestor(store, reconciler, logger))
	bus.Subscribe("archive", webhook.NewArchiver(archive, "events"))
	bus.Subscribe("expiry", appTemporal.NewExpiryScheduler(temporalClient, cfg.TemporalTaskQueue, cfg.WorkflowIDPrefix, cfg.EnvelopeExpiry, logger))
	bus.Subscribe("metrics", collector)

	var envelopes signature.Store = signature.NewMemoryStore()
	if cfg.EnvelopeStore == config.EnvelopeStorePostgres {
		envelopes = storage.NewEnvelopeStore(store)
	}
	urls := signature.NewURLSigner(cfg.SigningBaseURL, cfg.SigningURLSecret, cfg.SigningURLTTL)
	provider := signature.NewSimulator(envelopes, bus, urls, logger)

	deps := api.Deps{
		Store:      store,
		Engine:     engine,
		Gate:       compliance.NewGate(store, engine, collector),
		Reconciler: reconciler,
		Provider:   provider,
		URLs:       urls,
		Metrics:    collector.Handler(),
		Ready:      store.Ping,
		Logger:     logger,
	}
	if verifier, err := webhook.NewVerifier(cfg.WebhookSecret); err != nil {
		logger.Warn("signature webhook ingress disabled", "error", err)
	} else {
		deps.Verifier = verifier
		deps.Dispatcher = appTemporal.NewDispatcher(temporalClient, cfg.TemporalTaskQueue, cfg.WorkflowIDPrefix, logger)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(api.NewHandler(deps)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.HTTPPort, "envelope_store", cfg.EnvelopeStore)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("http server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
