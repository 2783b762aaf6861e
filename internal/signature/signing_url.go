package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type SigningURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// URLSigner mints time-boxed signing links. Expiry is advisory: the state
// machine never rejects a transition because a link has lapsed.
type URLSigner struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
}

func NewURLSigner(baseURL string, secret string, ttl time.Duration) *URLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &URLSigner{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret), ttl: ttl}
}

func (s *URLSigner) Mint(envelopeID, signerID string, now time.Time) SigningURL {
	expires := now.Add(s.ttl).UTC().Truncate(time.Second)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	q.Set("token", s.token(envelopeID, signerID, expires.Unix()))
	return SigningURL{
		URL:       fmt.Sprintf("%s/sign/%s/%s?%s", s.baseURL, url.PathEscape(envelopeID), url.PathEscape(signerID), q.Encode()),
		ExpiresAt: expires,
	}
}

// Verify checks a token minted by Mint and that it has not lapsed at now.
func (s *URLSigner) Verify(envelopeID, signerID string, expiresUnix int64, token string, now time.Time) error {
	provided, err := hex.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}
	expected, _ := hex.DecodeString(s.token(envelopeID, signerID, expiresUnix))
	if !hmac.Equal(expected, provided) {
		return ErrInvalidToken
	}
	if now.Unix() > expiresUnix {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return nil
}

func (s *URLSigner) token(envelopeID, signerID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = fmt.Fprintf(mac, "%s|%s|%d", envelopeID, signerID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}
