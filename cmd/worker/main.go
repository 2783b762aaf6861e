package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

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
	ingestor := webhook.NewIngestor(store, reconciler, logger)

	bus := webhook.NewBus(logger, collector)
	bus.Subscribe("ingest", ingestor)
	bus.Subscribe("archive", webhook.NewArchiver(archive, "events"))
	bus.Subscribe("metrics", collector)

	var envelopes signature.Store = signature.NewMemoryStore()
	if cfg.EnvelopeStore == config.EnvelopeStorePostgres {
		envelopes = storage.NewEnvelopeStore(store)
	} else {
		logger.Warn("envelope store is in-memory; expiry only sees envelopes created by this process")
	}
	urls := signature.NewURLSigner(cfg.SigningBaseURL, cfg.SigningURLSecret, cfg.SigningURLTTL)

	activities := &appTemporal.Activities{
		Events:    ingestor,
		Documents: store,
		Blockers:  reconciler,
		Envelopes: signature.NewSimulator(envelopes, bus, urls, logger),
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.DocumentSyncWorkflow, workflow.RegisterOptions{Name: appTemporal.DocumentSyncWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.EnvelopeExpiryWorkflow, workflow.RegisterOptions{Name: appTemporal.EnvelopeExpiryWorkflowName})
	w.RegisterActivity(activities.ApplyEventActivity)
	w.RegisterActivity(activities.RecordSignedCopyActivity)
	w.RegisterActivity(activities.SyncBlockersActivity)
	w.RegisterActivity(activities.ExpireEnvelopeActivity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := compliance.NewSweeper(store, reconciler, cfg.ReconcileSchedule, logger).WithRecorder(collector)
	if err := sweeper.Start(ctx); err != nil {
		fatal("start reconciliation sweep", err)
	}
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	logger.Info("worker running", "task_queue", cfg.TemporalTaskQueue, "sweep_schedule", cfg.ReconcileSchedule)
	if err := w.Run(worker.InterruptCh()); err != nil {
		fatal("worker stopped with error", err)
	}
}
