package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"casegate/internal/compliance"
	"casegate/internal/domain"
	"casegate/internal/signature"
	"casegate/internal/webhook"
)

const (
	ErrTypeNotFound     = "NotFound"
	ErrTypeInvalidInput = "InvalidInput"
)

type EventApplier interface {
	Apply(ctx context.Context, ev webhook.Event) (string, error)
}

type SignedCopyStore interface {
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error
	SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error
}

type BlockerSyncer interface {
	Sync(ctx context.Context, caseID string) (compliance.SyncResult, error)
}

type EnvelopeExpirer interface {
	ExpireEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
}

type Activities struct {
	Events    EventApplier
	Documents SignedCopyStore
	Blockers  BlockerSyncer
	Envelopes EnvelopeExpirer
}

type ApplyEventOutput struct {
	CaseID string
}

type RecordSignedCopyInput struct {
	DocumentID string
	Filename   string
	ObjectKey  string
}

type RecordSignedCopyOutput struct {
	CaseID string
}

type SyncBlockersInput struct {
	CaseID string
}

type SyncBlockersOutput struct {
	CaseID   string
	Created  []string
	Resolved []string
	Open     int
}

type ExpireEnvelopeInput struct {
	EnvelopeID string
}

type ExpireEnvelopeOutput struct {
	Expired bool
	Status  domain.EnvelopeStatus
}

// classify turns domain errors into non-retryable application errors so
// Temporal does not retry work that can never succeed.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.Is(err, webhook.ErrMalformedEvent):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	default:
		return err
	}
}

func (a *Activities) ApplyEventActivity(ctx context.Context, ev webhook.Event) (ApplyEventOutput, error) {
	caseID, err := a.Events.Apply(ctx, ev)
	if err != nil {
		return ApplyEventOutput{}, classify(err)
	}
	return ApplyEventOutput{CaseID: caseID}, nil
}

// RecordSignedCopyActivity attaches a manually uploaded signed copy to its
// document and marks the document signed unless it is already archived.
func (a *Activities) RecordSignedCopyActivity(ctx context.Context, input RecordSignedCopyInput) (RecordSignedCopyOutput, error) {
	doc, err := a.Documents.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return RecordSignedCopyOutput{}, classify(err)
	}
	if doc.ObjectKey != input.ObjectKey {
		if err := a.Documents.SetDocumentObjectKey(ctx, doc.ID, input.ObjectKey); err != nil {
			return RecordSignedCopyOutput{}, classify(err)
		}
	}
	if doc.Status != domain.DocumentSigned && doc.Status != domain.DocumentArchived {
		if err := a.Documents.SetDocumentStatus(ctx, doc.ID, domain.DocumentSigned); err != nil {
			return RecordSignedCopyOutput{}, classify(err)
		}
	}
	return RecordSignedCopyOutput{CaseID: doc.CaseID}, nil
}

func (a *Activities) SyncBlockersActivity(ctx context.Context, input SyncBlockersInput) (SyncBlockersOutput, error) {
	res, err := a.Blockers.Sync(ctx, input.CaseID)
	if err != nil {
		return SyncBlockersOutput{}, classify(err)
	}
	out := SyncBlockersOutput{CaseID: res.CaseID, Open: res.Open}
	for _, b := range res.Created {
		out.Created = append(out.Created, b.RuleID)
	}
	for _, b := range res.Resolved {
		out.Resolved = append(out.Resolved, b.RuleID)
	}
	return out, nil
}

// ExpireEnvelopeActivity expires an envelope that is still open. An
// envelope that already settled is reported, not treated as a failure.
func (a *Activities) ExpireEnvelopeActivity(ctx context.Context, input ExpireEnvelopeInput) (ExpireEnvelopeOutput, error) {
	env, err := a.Envelopes.ExpireEnvelope(ctx, input.EnvelopeID)
	if err == nil {
		return ExpireEnvelopeOutput{Expired: true, Status: env.Status}, nil
	}
	if errors.Is(err, signature.ErrInvalidTransition) {
		return ExpireEnvelopeOutput{Expired: false}, nil
	}
	return ExpireEnvelopeOutput{}, classify(err)
}
