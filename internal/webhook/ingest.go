package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

// DocumentStore is the persistence surface webhook ingestion writes to.
// RecordEnvelopeStatus must not move a signature request out of a terminal
// status so that late or replayed events cannot regress it.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	GetDocumentByEnvelope(ctx context.Context, envelopeID string) (domain.Document, error)
	AttachEnvelope(ctx context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error
	RecordEnvelopeStatus(ctx context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error
	RecordSignerStatus(ctx context.Context, envelopeID string, signerID, email string, status domain.SignerStatus, at time.Time) error
	SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error
}

type Syncer interface {
	Sync(ctx context.Context, caseID string) (compliance.SyncResult, error)
}

// Ingestor mirrors envelope events onto documents and signature requests
// and then re-syncs the owning case's blockers.
type Ingestor struct {
	docs   DocumentStore
	sync   Syncer
	logger *slog.Logger
}

func NewIngestor(docs DocumentStore, sync Syncer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{docs: docs, sync: sync, logger: logger.With("component", "webhook.ingest")}
}

func (i *Ingestor) HandleEvent(ctx context.Context, ev Event) error {
	caseID, err := i.Apply(ctx, ev)
	if err != nil {
		return err
	}
	res, err := i.sync.Sync(ctx, caseID)
	if err != nil {
		return fmt.Errorf("sync case %s after %s: %w", caseID, ev.Type, err)
	}
	i.logger.InfoContext(ctx, "webhook event ingested",
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.Type)),
		slog.String("case_id", caseID),
		slog.Int("blockers_created", len(res.Created)),
		slog.Int("blockers_resolved", len(res.Resolved)),
	)
	return nil
}

// Apply persists the event without syncing and returns the owning case id.
func (i *Ingestor) Apply(ctx context.Context, ev Event) (string, error) {
	if !ev.Type.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, ev.Type)
	}
	doc, err := i.resolveDocument(ctx, ev)
	if err != nil {
		return "", err
	}
	envelopeID := ev.EnvelopeID
	if envelopeID == "" && doc.EnvelopeID != nil {
		envelopeID = *doc.EnvelopeID
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if ev.Type.IsSignerEvent() && ev.SignerID != "" {
		status := ev.SignerStatus
		if status == "" {
			status = signerStatusFor(ev.Type)
		}
		if err := i.docs.RecordSignerStatus(ctx, envelopeID, ev.SignerID, ev.SignerEmail, status, at); err != nil {
			return "", fmt.Errorf("record signer status: %w", err)
		}
	}

	status := ev.EnvelopeStatus
	if status == "" {
		status = envelopeStatusFor(ev.Type)
	}
	// rules look at the newest envelope; the store refuses to move a
	// document back to one it has already superseded
	current := envelopeID == "" || (doc.EnvelopeID != nil && *doc.EnvelopeID == envelopeID)
	if !current {
		if err := i.docs.AttachEnvelope(ctx, doc.ID, envelopeID, status, at); err != nil {
			return "", fmt.Errorf("attach envelope: %w", err)
		}
		if doc, err = i.docs.GetDocument(ctx, doc.ID); err != nil {
			return "", fmt.Errorf("reload document: %w", err)
		}
		current = doc.EnvelopeID != nil && *doc.EnvelopeID == envelopeID
	}
	if status != "" && envelopeID != "" {
		if err := i.docs.RecordEnvelopeStatus(ctx, doc.ID, envelopeID, status, at); err != nil {
			return "", fmt.Errorf("record envelope status: %w", err)
		}
	}
	if !current {
		i.logger.InfoContext(ctx, "event for superseded envelope",
			slog.String("event_id", ev.ID),
			slog.String("envelope_id", envelopeID),
			slog.String("document_id", doc.ID),
		)
		return doc.CaseID, nil
	}

	if next, ok := documentStatusFor(ev.Type, doc.Status); ok {
		if err := i.docs.SetDocumentStatus(ctx, doc.ID, next); err != nil {
			return "", fmt.Errorf("set document status: %w", err)
		}
	}
	return doc.CaseID, nil
}

func (i *Ingestor) resolveDocument(ctx context.Context, ev Event) (domain.Document, error) {
	if ev.DocumentID != "" {
		doc, err := i.docs.GetDocument(ctx, ev.DocumentID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) || ev.EnvelopeID == "" {
			return doc, err
		}
	}
	return i.docs.GetDocumentByEnvelope(ctx, ev.EnvelopeID)
}

func envelopeStatusFor(t EventType) domain.EnvelopeStatus {
	switch t {
	case EnvelopeSent:
		return domain.EnvelopeSent
	case EnvelopeViewed:
		return domain.EnvelopeViewed
	case EnvelopeSigned:
		return domain.EnvelopePartiallySigned
	case EnvelopeCompleted:
		return domain.EnvelopeCompleted
	case EnvelopeDeclined:
		return domain.EnvelopeDeclined
	case EnvelopeExpired:
		return domain.EnvelopeExpired
	case EnvelopeCancelled:
		return domain.EnvelopeCancelled
	default:
		return ""
	}
}

func signerStatusFor(t EventType) domain.SignerStatus {
	switch t {
	case SignerSent:
		return domain.SignerSent
	case SignerViewed:
		return domain.SignerViewed
	case SignerSigned:
		return domain.SignerSigned
	case SignerDeclined:
		return domain.SignerDeclined
	default:
		return ""
	}
}

// documentStatusFor reports the document status an event moves to, if any.
// Archived documents are never touched.
func documentStatusFor(t EventType, current domain.DocumentStatus) (domain.DocumentStatus, bool) {
	switch t {
	case EnvelopeSent:
		if current == domain.DocumentSigned || current == domain.DocumentArchived || current == domain.DocumentSentForSignature {
			return "", false
		}
		return domain.DocumentSentForSignature, true
	case EnvelopeCompleted:
		if current == domain.DocumentSigned || current == domain.DocumentArchived {
			return "", false
		}
		return domain.DocumentSigned, true
	default:
		return "", false
	}
}
