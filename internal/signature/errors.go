package signature

import (
	"errors"
	"fmt"

	"casegate/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid envelope transition")
	ErrUnknownSigner     = errors.New("unknown signer")
	ErrInvalidEnvelope   = errors.New("invalid envelope request")
	ErrInvalidToken      = errors.New("invalid signing token")
)

// unknownSignerError matches ErrUnknownSigner, ErrInvalidTransition and
// domain.ErrNotFound so callers can branch on whichever they care about.
type unknownSignerError struct {
	envelopeID string
	signerID   string
}

func (e *unknownSignerError) Error() string {
	return fmt.Sprintf("envelope %s has no signer %s", e.envelopeID, e.signerID)
}

func (e *unknownSignerError) Is(target error) bool {
	return target == ErrUnknownSigner || target == ErrInvalidTransition || target == domain.ErrNotFound
}

func terminalError(env *domain.Envelope, op string) error {
	return fmt.Errorf("%w: %s on %s envelope %s", ErrInvalidTransition, op, env.Status, env.ID)
}
