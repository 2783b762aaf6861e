package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.temporal.io/sdk/client"

	"casegate/internal/config"
	"casegate/internal/events"
	"casegate/internal/logging"
	appTemporal "casegate/internal/temporal"
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

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
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

	dispatcher := appTemporal.NewDispatcher(temporalClient, cfg.TemporalTaskQueue, cfg.WorkflowIDPrefix, logger)
	source := events.NewMinioSignedCopySource(minioClient, cfg.SignedBucket, "", "", logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event-handler listening for signed copies", "bucket", cfg.SignedBucket)
	err = source.Run(ctx, func(parent context.Context, ev events.SignedCopyEvent) error {
		_, err := dispatcher.DispatchSignedCopy(parent, appTemporal.SignedCopyInput{
			DocumentID: ev.DocumentID,
			Filename:   ev.Filename,
			ObjectKey:  ev.ObjectKey,
		})
		return err
	})
	if err != nil && ctx.Err() == nil {
		fatal("event-handler stopped with error", err)
	}
}
