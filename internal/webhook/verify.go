package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"
)

var (
	ErrMissingSignature = errors.New("webhook signature header missing")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Verifier checks hex HMAC-SHA256 signatures over the raw request body.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook verifier secret is empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the header value a sender should attach to body.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *Verifier) Verify(headers http.Header, body []byte) error {
	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return ErrMissingSignature
	}
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrBadSignature
	}
	return nil
}

// Decode verifies the request and parses the event. The X-Event-Id and
// X-Event-Type headers fill in fields the body leaves empty and must agree
// with it otherwise.
func (v *Verifier) Decode(headers http.Header, body []byte) (Event, error) {
	if err := v.Verify(headers, body); err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if id := strings.TrimSpace(headers.Get(EventIDHeader)); id != "" {
		if ev.ID != "" && ev.ID != id {
			return Event{}, fmt.Errorf("%w: event id header %q does not match body %q", ErrMalformedEvent, id, ev.ID)
		}
		ev.ID = id
	}
	if typ := EventType(strings.TrimSpace(headers.Get(EventTypeHeader))); typ != "" {
		if ev.Type != "" && ev.Type != typ {
			return Event{}, fmt.Errorf("%w: event type header %q does not match body %q", ErrMalformedEvent, typ, ev.Type)
		}
		ev.Type = typ
	}
	if ev.ID == "" {
		return Event{}, fmt.Errorf("%w: event id is required", ErrMalformedEvent)
	}
	if !ev.Type.Valid() {
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, ev.Type)
	}
	if ev.EnvelopeID == "" && ev.DocumentID == "" {
		return Event{}, fmt.Errorf("%w: envelope or document id is required", ErrMalformedEvent)
	}
	return ev, nil
}
