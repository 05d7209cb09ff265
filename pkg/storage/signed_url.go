package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTicket flags malformed or tampered tokens.
	ErrInvalidTicket = errors.New("invalid upload ticket")
	// ErrTicketExpired flags tokens past their expiry.
	ErrTicketExpired = errors.New("upload ticket expired")
)

// Ticket binds a pending direct upload to the object key and the metadata the
// client declared when asking for the signed URL.
type Ticket struct {
	Key         string `json:"k"`
	Kind        string `json:"t,omitempty"`
	ContentHash string `json:"h,omitempty"`
	ContentType string `json:"c,omitempty"`
	Size        int64  `json:"s,omitempty"`
	UploaderID  string `json:"u,omitempty"`
	ExpiresAt   int64  `json:"e"`
}

// SignedURLSigner creates and validates HMAC signed tickets.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and default TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the default ticket lifetime.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Generate returns a signed token for the ticket. A zero ttl uses the default.
func (s *SignedURLSigner) Generate(ticket Ticket, ttl time.Duration) (string, time.Time, error) {
	if ticket.Key == "" {
		return "", time.Time{}, fmt.Errorf("ticket key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	ticket.ExpiresAt = expiresAt.Unix()

	raw, err := json.Marshal(ticket)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode ticket: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.sign(payload), expiresAt, nil
}

// Parse validates a token and returns the embedded ticket.
// When allowExpired is true, the timestamp check is skipped.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (Ticket, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return Ticket{}, ErrInvalidTicket
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(signature)) {
		return Ticket{}, ErrInvalidTicket
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Ticket{}, ErrInvalidTicket
	}
	var ticket Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil || ticket.Key == "" {
		return Ticket{}, ErrInvalidTicket
	}
	if !allowExpired && s.now().After(time.Unix(ticket.ExpiresAt, 0)) {
		return Ticket{}, ErrTicketExpired
	}
	return ticket, nil
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
