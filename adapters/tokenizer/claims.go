package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AssertionClaims combines standard claims with the identity fields the
// forum services need without a store round-trip.
type AssertionClaims struct {
	jwt.RegisteredClaims
	SessionID    string `json:"sid"`
	IdentityType string `json:"idt"`
	Address      string `json:"addr,omitempty"`
}
