package temporal

import (
	"casegate/internal/domain"
	"casegate/internal/webhook"
)

// EnvelopeSettledSignalName tells a running expiry workflow that its
// envelope reached a terminal state on its own.
const EnvelopeSettledSignalName = "envelopeSettled"

type EnvelopeSettledSignal struct {
	EventType webhook.EventType     `json:"event_type"`
	Status    domain.EnvelopeStatus `json:"status"`
}
