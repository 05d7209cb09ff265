package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaelevate/portal-api/internal/models"
)

// OTPPurpose selects which code slot on the user record is used.
type OTPPurpose string

const (
	OTPPurposeVerify OTPPurpose = "verify"
	OTPPurposeReset  OTPPurpose = "reset"
)

// ParseOTPPurpose defaults to verify for an empty value.
func ParseOTPPurpose(raw string) (OTPPurpose, bool) {
	switch raw {
	case "", string(OTPPurposeVerify):
		return OTPPurposeVerify, true
	case string(OTPPurposeReset):
		return OTPPurposeReset, true
	}
	return "", false
}

var (
	ErrOTPNotFound    = errors.New("otp: no active code")
	ErrOTPExpired     = errors.New("otp: code expired")
	ErrOTPMismatch    = errors.New("otp: code mismatch")
	ErrOTPRateLimited = errors.New("otp: resend cooldown active")
)

// OTPCooldownError reports how long the caller must wait before a resend.
type OTPCooldownError struct {
	Remaining time.Duration
}

func (e *OTPCooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrOTPRateLimited.Error(), e.Remaining.Round(time.Second))
}

func (e *OTPCooldownError) Unwrap() error { return ErrOTPRateLimited }

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (e *OTPCooldownError) RetryAfterSeconds() int {
	secs := int(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

const (
	otpMin   = 100000
	otpRange = 900000
)

// OTPIssuer issues and consumes six digit one-time codes. Only bcrypt hashes
// are written to the user value; the plaintext is returned for delivery.
type OTPIssuer struct {
	ttl      time.Duration
	cooldown time.Duration
	cost     int
	random   io.Reader
}

// NewOTPIssuer constructs an issuer with the given code lifetime and resend cooldown.
func NewOTPIssuer(ttl, cooldown time.Duration) *OTPIssuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &OTPIssuer{ttl: ttl, cooldown: cooldown, cost: bcrypt.DefaultCost, random: rand.Reader}
}

// TTL returns the code lifetime.
func (o *OTPIssuer) TTL() time.Duration { return o.ttl }

// Issue generates a fresh code for purpose and replaces any previous one.
func (o *OTPIssuer) Issue(user *models.User, purpose OTPPurpose, now time.Time) (string, error) {
	n, err := rand.Int(o.random, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+otpMin)
	hash, err := bcrypt.GenerateFromPassword([]byte(code), o.cost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}

	hashed := string(hash)
	expires := now.Add(o.ttl)
	switch purpose {
	case OTPPurposeReset:
		user.ResetTokenHash = &hashed
		user.ResetTokenExpiresAt = &expires
	default:
		sent := now
		user.OTPHash = &hashed
		user.OTPExpiresAt = &expires
		user.OTPSentAt = &sent
	}
	return code, nil
}

// Cooldown returns the remaining wait before another code may be sent.
func (o *OTPIssuer) Cooldown(user *models.User, purpose OTPPurpose, now time.Time) time.Duration {
	sent := o.lastSent(user, purpose)
	if sent == nil {
		return 0
	}
	elapsed := now.Sub(*sent)
	if elapsed >= o.cooldown {
		return 0
	}
	return o.cooldown - elapsed
}

// Resend issues a new code unless the cooldown since the last one is active.
func (o *OTPIssuer) Resend(user *models.User, purpose OTPPurpose, now time.Time) (string, error) {
	if remaining := o.Cooldown(user, purpose, now); remaining > 0 {
		return "", &OTPCooldownError{Remaining: remaining}
	}
	return o.Issue(user, purpose, now)
}

// Consume checks candidate against the stored hash and clears the slot on success.
func (o *OTPIssuer) Consume(user *models.User, candidate string, purpose OTPPurpose, now time.Time) error {
	hash, expires := user.OTPHash, user.OTPExpiresAt
	if purpose == OTPPurposeReset {
		hash, expires = user.ResetTokenHash, user.ResetTokenExpiresAt
	}
	if hash == nil || *hash == "" {
		return ErrOTPNotFound
	}
	if expires == nil || !now.Before(*expires) {
		return ErrOTPExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(candidate)); err != nil {
		return ErrOTPMismatch
	}

	if purpose == OTPPurposeReset {
		user.ResetTokenHash = nil
		user.ResetTokenExpiresAt = nil
	} else {
		user.OTPHash = nil
		user.OTPExpiresAt = nil
		user.OTPSentAt = nil
	}
	return nil
}

// lastSent returns when the current code was issued. The reset slot has no
// sent-at column so it is derived from the expiry.
func (o *OTPIssuer) lastSent(user *models.User, purpose OTPPurpose) *time.Time {
	if purpose == OTPPurposeReset {
		if user.ResetTokenExpiresAt == nil {
			return nil
		}
		sent := user.ResetTokenExpiresAt.Add(-o.ttl)
		return &sent
	}
	return user.OTPSentAt
}
