// Package doselink signs and verifies the confirm and skip links sent in
// reminder emails.  A link token names one occurrence and one action.  It
// is an HS256 JWT signed with a key derived from JWT_SECRET, so an API
// access token is never a valid link and a link is never a valid access
// token.
package doselink

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Action is what following a link records.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionSkip    Action = "skip"
)

// DefaultTTL bounds how long after sending a link still works.
const DefaultTTL = 72 * time.Hour

// ErrInvalidToken is returned for a malformed, expired or foreign token.
var ErrInvalidToken = errors.New("invalid dose link")

// Claims identifies the occurrence; Subject is the owning user id.
type Claims struct {
	Action      Action    `json:"act"`
	MedicineID  string    `json:"mid"`
	ScheduledAt time.Time `json:"at"`
	jwt.RegisteredClaims
}

// Signer issues and checks link tokens.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner derives the link key from secret.  ttl <= 0 means DefaultTTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("dose-link"))
	return &Signer{key: mac.Sum(nil), ttl: ttl, now: time.Now}
}

// Sign returns a token for action on (medicineID, scheduledAt) owned by
// userID.
func (s *Signer) Sign(action Action, userID, medicineID string, scheduledAt time.Time) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Action:      action,
		MedicineID:  medicineID,
		ScheduledAt: scheduledAt.UTC(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign dose link: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns its claims.
func (s *Signer) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.MedicineID == "" || claims.ScheduledAt.IsZero() {
		return Claims{}, ErrInvalidToken
	}
	if claims.Action != ActionConfirm && claims.Action != ActionSkip {
		return Claims{}, fmt.Errorf("%w: unknown action %q", ErrInvalidToken, claims.Action)
	}
	return claims, nil
}
