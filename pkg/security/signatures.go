package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the issuer claim of caller identity tokens.
const Issuer = "carbonlock-portal"

// CallerIdentity is what the remote service learns about the caller.
type CallerIdentity struct {
	Principal string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer produces bearer tokens asserting the caller principal.
type Signer interface {
	Sign(now time.Time) (string, error)
	Principal() string
}

type hmacSigner struct {
	principal string
	secret    []byte
	ttl       time.Duration
}

// NewSigner creates an HS256 signer for the given caller principal.
func NewSigner(principal, secret string, ttl time.Duration) (Signer, error) {
	if principal == "" {
		return nil, errors.New("caller principal is required")
	}
	if secret == "" {
		return nil, errors.New("identity secret is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &hmacSigner{principal: principal, secret: []byte(secret), ttl: ttl}, nil
}

func (s *hmacSigner) Principal() string {
	return s.principal
}

func (s *hmacSigner) Sign(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   s.principal,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign caller identity: %w", err)
	}
	return token, nil
}

// VerifyToken checks a caller identity token signed with secret as of now.
func VerifyToken(token, secret string, now time.Time) (*CallerIdentity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid caller identity: %w", err)
	}

	identity := &CallerIdentity{Principal: claims.Subject}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
