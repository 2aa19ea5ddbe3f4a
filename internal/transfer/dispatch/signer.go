package dispatch

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "hie-gateway/pkg/domain"
)

const (
	// TokenIssuer is the iss claim on every outbound token.
	TokenIssuer = "hie-gateway"
	// TokenTTL bounds how long a captured webhook token stays usable.
	TokenTTL = 60 * time.Second
)

// Signer mints HS256 bearer tokens scoped to one entity and one transfer.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. An empty secret is rejected.
func NewSigner(secret []byte, now func() time.Time) (*Signer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("webhook signing secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: secret, now: now}, nil
}

// Sign returns a token with aud=target and sub=transfer.
func (s *Signer) Sign(target id.EntityID, transfer id.TransferID) (string, error) {
	issued := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   string(transfer),
		Audience:  jwt.ClaimStrings{string(target)},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(TokenTTL)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign webhook token: %w", err)
	}
	return token, nil
}

// Verify parses a token minted by Sign for target. Receivers and tests use it
// to authenticate inbound webhooks.
func (s *Signer) Verify(raw string, target id.EntityID) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(string(target)),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
