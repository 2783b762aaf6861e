package signature

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"casegate/internal/domain"
	"casegate/internal/webhook"
)

// Provider is the operation set every e-signature integration exposes.
// Compliance checks only ever look at the resulting envelope status, so any
// vendor behind this interface is interchangeable.
type Provider interface {
	CreateEnvelope(ctx context.Context, documentID, documentName string, signers []SignerInput) (*domain.Envelope, error)
	GetEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	GetSigningURL(ctx context.Context, envelopeID, signerID string) (SigningURL, error)
	SimulateSign(ctx context.Context, envelopeID, signerID string) (*domain.Envelope, error)
	SimulateDecline(ctx context.Context, envelopeID, signerID string) (*domain.Envelope, error)
	CancelEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	ResendNotification(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	ExpireEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
}

// Publisher receives events after the transition that produced them has
// been stored.
type Publisher interface {
	Publish(ctx context.Context, events ...webhook.Event) int
}

type SignerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Order int    `json:"order,omitempty"`
}

// Simulator is the built-in provider. Signing and declining are driven by
// API calls instead of a vendor callback.
type Simulator struct {
	store     Store
	publisher Publisher
	urls      *URLSigner
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

var _ Provider = (*Simulator)(nil)

func NewSimulator(store Store, publisher Publisher, urls *URLSigner, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		store:     store,
		publisher: publisher,
		urls:      urls,
		logger:    logger.With("component", "signature.simulator"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (p *Simulator) CreateEnvelope(ctx context.Context, documentID, documentName string, signers []SignerInput) (*domain.Envelope, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidEnvelope)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: at least one signer is required", ErrInvalidEnvelope)
	}
	for i, s := range signers {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" {
			return nil, fmt.Errorf("%w: signer %d needs a name and email", ErrInvalidEnvelope, i)
		}
	}

	now := p.now()
	env := &domain.Envelope{
		ID:           p.newID(),
		DocumentID:   documentID,
		DocumentName: documentName,
		Signers:      make([]domain.Signer, 0, len(signers)),
		SentAt:       &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, s := range signers {
		order := s.Order
		if order <= 0 {
			order = i + 1
		}
		env.Signers = append(env.Signers, domain.Signer{
			ID:     p.newID(),
			Name:   strings.TrimSpace(s.Name),
			Email:  strings.TrimSpace(s.Email),
			Role:   s.Role,
			Order:  order,
			Status: domain.SignerSent,
		})
	}
	sort.SliceStable(env.Signers, func(i, j int) bool { return env.Signers[i].Order < env.Signers[j].Order })
	env.Status = domain.AggregateEnvelopeStatus(env.Signers)

	if err := p.store.Create(ctx, env); err != nil {
		return nil, fmt.Errorf("create envelope: %w", err)
	}

	events := []webhook.Event{p.envelopeEvent(env, webhook.EnvelopeSent, now)}
	for i := range env.Signers {
		events = append(events, p.signerEvent(env, &env.Signers[i], webhook.SignerSent, now))
	}
	p.publish(ctx, events)
	return env.Clone(), nil
}

func (p *Simulator) GetEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error) {
	return p.store.Get(ctx, envelopeID)
}

// GetSigningURL marks a signer's first view and returns a time-boxed link.
// On a terminal envelope the link is still minted but nothing changes, so
// the signer lands on a read-only view.
func (p *Simulator) GetSigningURL(ctx context.Context, envelopeID, signerID string) (SigningURL, error) {
	var events []webhook.Event
	now := p.now()
	_, err := p.store.Update(ctx, envelopeID, func(env *domain.Envelope) error {
		events = nil
		signer, ok := env.Signer(signerID)
		if !ok {
			return &unknownSignerError{envelopeID: envelopeID, signerID: signerID}
		}
		if env.Status.Terminal() || signer.Status != domain.SignerSent {
			return nil
		}
		signer.Status = domain.SignerViewed
		signer.ViewedAt = &now
		prev := env.Status
		env.Status = domain.AggregateEnvelopeStatus(env.Signers)
		env.UpdatedAt = now

		events = append(events, p.signerEvent(env, signer, webhook.SignerViewed, now))
		if prev != domain.EnvelopeViewed && env.Status == domain.EnvelopeViewed {
			events = append(events, p.envelopeEvent(env, webhook.EnvelopeViewed, now))
		}
		return nil
	})
	if err != nil {
		return SigningURL{}, err
	}
	p.publish(ctx, events)
	return p.urls.Mint(envelopeID, signerID, now), nil
}

func (p *Simulator) SimulateSign(ctx context.Context, envelopeID, signerID string) (*domain.Envelope, error) {
	var events []webhook.Event
	now := p.now()
	env, err := p.store.Update(ctx, envelopeID, func(env *domain.Envelope) error {
		events = nil
		signer, err := p.actionableSigner(env, signerID, "sign")
		if err != nil {
			return err
		}
		signer.Status = domain.SignerSigned
		signer.SignedAt = &now
		prev := env.Status
		env.Status = domain.AggregateEnvelopeStatus(env.Signers)
		env.UpdatedAt = now

		events = append(events, p.signerEvent(env, signer, webhook.SignerSigned, now))
		if env.Status != prev {
			switch env.Status {
			case domain.EnvelopeCompleted:
				env.CompletedAt = &now
				events = append(events, p.envelopeEvent(env, webhook.EnvelopeCompleted, now))
			case domain.EnvelopePartiallySigned:
				events = append(events, p.envelopeEvent(env, webhook.EnvelopeSigned, now))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.publish(ctx, events)
	return env, nil
}

func (p *Simulator) SimulateDecline(ctx context.Context, envelopeID, signerID string) (*domain.Envelope, error) {
	var events []webhook.Event
	now := p.now()
	env, err := p.store.Update(ctx, envelopeID, func(env *domain.Envelope) error {
		events = nil
		signer, err := p.actionableSigner(env, signerID, "decline")
		if err != nil {
			return err
		}
		signer.Status = domain.SignerDeclined
		env.Status = domain.AggregateEnvelopeStatus(env.Signers)
		env.UpdatedAt = now

		events = append(events,
			p.signerEvent(env, signer, webhook.SignerDeclined, now),
			p.envelopeEvent(env, webhook.EnvelopeDeclined, now),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.publish(ctx, events)
	return env, nil
}

func (p *Simulator) CancelEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error) {
	return p.settle(ctx, envelopeID, domain.EnvelopeCancelled, webhook.EnvelopeCancelled, "cancel")
}

// ExpireEnvelope moves a still-open envelope to Expired. It is driven from
// outside, typically by the expiry workflow.
func (p *Simulator) ExpireEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error) {
	return p.settle(ctx, envelopeID, domain.EnvelopeExpired, webhook.EnvelopeExpired, "expire")
}

// ResendNotification only refreshes the sent timestamp.
func (p *Simulator) ResendNotification(ctx context.Context, envelopeID string) (*domain.Envelope, error) {
	now := p.now()
	env, err := p.store.Update(ctx, envelopeID, func(env *domain.Envelope) error {
		if env.Status.Terminal() {
			return terminalError(env, "resend")
		}
		env.SentAt = &now
		env.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "signature notification resent", slog.String("envelope_id", envelopeID))
	return env, nil
}

func (p *Simulator) settle(ctx context.Context, envelopeID string, status domain.EnvelopeStatus, eventType webhook.EventType, op string) (*domain.Envelope, error) {
	var events []webhook.Event
	now := p.now()
	env, err := p.store.Update(ctx, envelopeID, func(env *domain.Envelope) error {
		events = nil
		if env.Status.Terminal() {
			return terminalError(env, op)
		}
		env.Status = status
		env.UpdatedAt = now
		events = append(events, p.envelopeEvent(env, eventType, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.publish(ctx, events)
	return env, nil
}

func (p *Simulator) actionableSigner(env *domain.Envelope, signerID, op string) (*domain.Signer, error) {
	if env.Status.Terminal() {
		return nil, terminalError(env, op)
	}
	signer, ok := env.Signer(signerID)
	if !ok {
		return nil, &unknownSignerError{envelopeID: env.ID, signerID: signerID}
	}
	if signer.Status.Final() {
		return nil, fmt.Errorf("%w: signer %s already %s", ErrInvalidTransition, signerID, signer.Status)
	}
	return signer, nil
}

func (p *Simulator) envelopeEvent(env *domain.Envelope, t webhook.EventType, at time.Time) webhook.Event {
	return webhook.Event{
		ID:             p.newID(),
		Type:           t,
		EnvelopeID:     env.ID,
		DocumentID:     env.DocumentID,
		EnvelopeStatus: env.Status,
		OccurredAt:     at,
	}
}

func (p *Simulator) signerEvent(env *domain.Envelope, s *domain.Signer, t webhook.EventType, at time.Time) webhook.Event {
	ev := p.envelopeEvent(env, t, at)
	ev.SignerID = s.ID
	ev.SignerEmail = s.Email
	ev.SignerStatus = s.Status
	return ev
}

func (p *Simulator) publish(ctx context.Context, events []webhook.Event) {
	if p.publisher == nil || len(events) == 0 {
		return
	}
	p.publisher.Publish(ctx, events...)
}
