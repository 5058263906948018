package tokenizer

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
)

// AudienceAssertion scopes assertion tokens so they cannot be replayed as
// anything else.
const AudienceAssertion = "curia:assertion"

// DefaultAssertionTTL keeps assertions short-lived; consumers re-fetch from
// the session endpoint when one expires.
const DefaultAssertionTTL = 5 * time.Minute

// JWTAssertionIssuer implements the AssertionIssuer interface using ES256.
type JWTAssertionIssuer struct {
	signKey *ecdsa.PrivateKey
	ttl     time.Duration
}

// NewJWTAssertionIssuer creates a new JWT assertion issuer.
func NewJWTAssertionIssuer(signKey *ecdsa.PrivateKey) ports.AssertionIssuer {
	return &JWTAssertionIssuer{signKey: signKey, ttl: DefaultAssertionTTL}
}

// IssueAssertion converts a validated session into a signed assertion.
func (j *JWTAssertionIssuer) IssueAssertion(session *core.Session) (string, error) {
	now := time.Now()
	claims := AssertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{AudienceAssertion},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		SessionID:    session.ID,
		IdentityType: string(session.IdentityType),
		Address:      session.Address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// VerifyAssertion parses and verifies an assertion token.
func (j *JWTAssertionIssuer) VerifyAssertion(tokenStr string) (*core.IdentityAssertion, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AssertionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceAssertion))
	if err != nil {
		return nil, fmt.Errorf("failed to parse assertion: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid assertion token")
	}

	claims, ok := token.Claims.(*AssertionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return &core.IdentityAssertion{
		SessionID:    claims.SessionID,
		UserID:       claims.Subject,
		IdentityType: core.IdentityType(claims.IdentityType),
		Address:      claims.Address,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}
