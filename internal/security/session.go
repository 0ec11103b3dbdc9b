package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionTypeSession      = "session"
	SessionTypeVerification = "verification"
)

var ErrInvalidSession = errors.New("invalid session token")

type SessionClaims struct {
	Email               string `json:"email,omitempty"`
	Name                string `json:"name"`
	HasCompletedProfile bool   `json:"has_completed_profile"`
	TokenType           string `json:"typ"`
	jwt.RegisteredClaims
}

type SessionSigner struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func NewSessionSigner(issuer, audience, secret string) *SessionSigner {
	return &SessionSigner{issuer: issuer, audience: audience, secret: []byte(secret), now: time.Now}
}

// Issue signs claims for ttl and returns the token with its expiry. Registered
// claims other than the subject are filled in by the signer.
func (s *SessionSigner) Issue(claims SessionClaims, ttl time.Duration) (string, time.Time, error) {
	if claims.Subject == "" {
		return "", time.Time{}, fmt.Errorf("session subject is required")
	}
	if claims.TokenType == "" {
		claims.TokenType = SessionTypeSession
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims.Issuer = s.issuer
	claims.Audience = jwt.ClaimStrings{s.audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *SessionSigner) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	switch claims.TokenType {
	case SessionTypeSession, SessionTypeVerification:
	default:
		return nil, ErrInvalidSession
	}
	return claims, nil
}
