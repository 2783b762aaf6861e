package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// SignedCopyEvent is a manually uploaded signed document stored under
// <documentID>/<filename> in the signed-copies bucket.
type SignedCopyEvent struct {
	DocumentID string
	Filename   string
	ObjectKey  string
	EventName  string
}

type SignedCopySource interface {
	Run(ctx context.Context, handler func(context.Context, SignedCopyEvent) error) error
}

type notificationListener interface {
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

type MinioSignedCopySource struct {
	client notificationListener
	bucket string
	prefix string
	suffix string
	logger *slog.Logger
}

var _ SignedCopySource = (*MinioSignedCopySource)(nil)

func NewMinioSignedCopySource(client *minio.Client, bucket, prefix, suffix string, logger *slog.Logger) *MinioSignedCopySource {
	return newSource(client, bucket, prefix, suffix, logger)
}

func newSource(client notificationListener, bucket, prefix, suffix string, logger *slog.Logger) *MinioSignedCopySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MinioSignedCopySource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
		logger: logger.With("component", "events.minio", "bucket", bucket),
	}
}

// Run blocks until ctx is cancelled or the notification stream fails. A
// handler error stops the loop.
func (s *MinioSignedCopySource) Run(ctx context.Context, handler func(context.Context, SignedCopyEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				event, err := eventFromRecord(record)
				if err != nil {
					s.logger.WarnContext(ctx, "skipping object", slog.String("key", record.S3.Object.Key), slog.Any("error", err))
					continue
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func eventFromRecord(record notification.Event) (SignedCopyEvent, error) {
	objectKey, err := decodeObjectKey(record.S3.Object.Key)
	if err != nil {
		return SignedCopyEvent{}, err
	}
	documentID, filename, err := parseObjectKey(objectKey)
	if err != nil {
		return SignedCopyEvent{}, err
	}
	return SignedCopyEvent{
		DocumentID: documentID,
		Filename:   filename,
		ObjectKey:  objectKey,
		EventName:  record.EventName,
	}, nil
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

func parseObjectKey(objectKey string) (string, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("object key %q does not match document_id/filename", objectKey)
	}
	documentID := strings.TrimSpace(parts[0])
	filename := strings.TrimSpace(parts[1])
	if documentID == "" || filename == "" {
		return "", "", fmt.Errorf("object key %q missing document id or filename", objectKey)
	}
	return documentID, filename, nil
}
