package webhook

import (
	"time"

	"casegate/internal/domain"
)

type EventType string

const (
	EnvelopeSent      EventType = "envelope.sent"
	EnvelopeViewed    EventType = "envelope.viewed"
	EnvelopeSigned    EventType = "envelope.signed"
	EnvelopeCompleted EventType = "envelope.completed"
	EnvelopeDeclined  EventType = "envelope.declined"
	EnvelopeExpired   EventType = "envelope.expired"
	EnvelopeCancelled EventType = "envelope.cancelled"

	SignerSent     EventType = "signer.sent"
	SignerViewed   EventType = "signer.viewed"
	SignerSigned   EventType = "signer.signed"
	SignerDeclined EventType = "signer.declined"
)

var knownEvents = map[EventType]struct{}{
	EnvelopeSent: {}, EnvelopeViewed: {}, EnvelopeSigned: {}, EnvelopeCompleted: {},
	EnvelopeDeclined: {}, EnvelopeExpired: {}, EnvelopeCancelled: {},
	SignerSent: {}, SignerViewed: {}, SignerSigned: {}, SignerDeclined: {},
}

func (t EventType) Valid() bool {
	_, ok := knownEvents[t]
	return ok
}

func (t EventType) IsSignerEvent() bool {
	switch t {
	case SignerSent, SignerViewed, SignerSigned, SignerDeclined:
		return true
	default:
		return false
	}
}

// Settles reports whether the event moves an envelope into a terminal state.
func (t EventType) Settles() bool {
	switch t {
	case EnvelopeCompleted, EnvelopeDeclined, EnvelopeExpired, EnvelopeCancelled:
		return true
	default:
		return false
	}
}

// Event is one envelope lifecycle notification. EnvelopeStatus always holds
// the envelope status after the transition; signer fields are set for
// signer.* events only.
type Event struct {
	ID             string                `json:"id"`
	Type           EventType             `json:"type"`
	EnvelopeID     string                `json:"envelope_id"`
	DocumentID     string                `json:"document_id"`
	EnvelopeStatus domain.EnvelopeStatus `json:"envelope_status"`
	SignerID       string                `json:"signer_id,omitempty"`
	SignerEmail    string                `json:"signer_email,omitempty"`
	SignerStatus   domain.SignerStatus   `json:"signer_status,omitempty"`
	OccurredAt     time.Time             `json:"occurred_at"`
}
