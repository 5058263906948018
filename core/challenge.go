package core

import (
	"fmt"
	"time"
)

// IdentityType distinguishes which ecosystem an identity belongs to, or that
// no wallet control was ever proved.
type IdentityType string

const (
	IdentityEthereum         IdentityType = "ethereum"
	IdentityUniversalProfile IdentityType = "universal_profile"
	IdentityAnonymous        IdentityType = "anonymous"
)

// WalletIdentity reports whether the identity type proves wallet control
// through a signed challenge.
func (t IdentityType) WalletIdentity() bool {
	return t == IdentityEthereum || t == IdentityUniversalProfile
}

// Challenge is a single-use, time-bound nonce a caller must sign to prove
// control of an address. It transitions issued → consumed exactly once, or
// expires by time elapse; a consumed or expired challenge never validates.
type Challenge struct {
	ID           string       `json:"id"`
	IdentityType IdentityType `json:"identityType"`
	Address      string       `json:"address"`
	Nonce        string       `json:"nonce"`
	Message      string       `json:"message"`
	IssuedAt     time.Time    `json:"issuedAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	Consumed     bool         `json:"consumed"`
}

// IsExpired reports whether the challenge window has closed.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ChallengeMessage builds the canonical human-readable message the wallet must
// sign. The exact byte sequence binds the signature to this one challenge:
// nonce, timestamps, challenge id and the claimed identity are all embedded.
func ChallengeMessage(domain string, identityType IdentityType, address, id, nonce string, issuedAt, expiresAt time.Time) string {
	account := "Ethereum"
	if identityType == IdentityUniversalProfile {
		account = "Universal Profile"
	}
	return fmt.Sprintf(
		"%s wants you to sign in with your %s account:\n%s\n\n"+
			"Sign this message to prove you control this address.\n\n"+
			"Challenge ID: %s\nNonce: %s\nIssued At: %s\nExpiration Time: %s",
		domain, account, address, id, nonce,
		issuedAt.UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339),
	)
}
