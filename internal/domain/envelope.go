package domain

import "time"

type Signer struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Role     string       `json:"role,omitempty"`
	Order    int          `json:"order"`
	Status   SignerStatus `json:"status"`
	ViewedAt *time.Time   `json:"viewed_at,omitempty"`
	SignedAt *time.Time   `json:"signed_at,omitempty"`
}

type Envelope struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	DocumentName string         `json:"document_name"`
	Status       EnvelopeStatus `json:"status"`
	Signers      []Signer       `json:"signers"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of a store.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := *e
	out.Signers = append([]Signer(nil), e.Signers...)
	return &out
}

func (e *Envelope) Signer(signerID string) (*Signer, bool) {
	for i := range e.Signers {
		if e.Signers[i].ID == signerID {
			return &e.Signers[i], true
		}
	}
	return nil, false
}

// AggregateEnvelopeStatus derives the envelope status from its signers.
// Precedence: all signed, any declined, some signed, some viewed, some sent.
func AggregateEnvelopeStatus(signers []Signer) EnvelopeStatus {
	if len(signers) == 0 {
		return EnvelopeDraft
	}
	var signed, declined, viewed, sent int
	for _, s := range signers {
		switch s.Status {
		case SignerSigned:
			signed++
		case SignerDeclined:
			declined++
		case SignerViewed:
			viewed++
		case SignerSent:
			sent++
		}
	}
	switch {
	case signed == len(signers):
		return EnvelopeCompleted
	case declined > 0:
		return EnvelopeDeclined
	case signed > 0:
		return EnvelopePartiallySigned
	case viewed > 0:
		return EnvelopeViewed
	case sent > 0:
		return EnvelopeSent
	default:
		return EnvelopeDraft
	}
}
