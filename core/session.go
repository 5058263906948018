package core

import "time"

// Session is a time-bound credential minted after successful challenge
// validation, or anonymously on the degraded path. The forum application only
// ever holds the opaque token; session records are owned by this subsystem.
type Session struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	IdentityType   IdentityType `json:"identityType"`
	Address        string       `json:"address,omitempty"`
	ChallengeID    string       `json:"challengeId,omitempty"`
	SignedMessage  string       `json:"signedMessage,omitempty"`
	Signature      string       `json:"signature,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	ExpiresAt      time.Time    `json:"expiresAt"`
	LastAccessedAt time.Time    `json:"lastAccessedAt"`
	Active         bool         `json:"isActive"`
}

// IsExpired reports whether the session lifetime has elapsed.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Verified reports whether wallet control was proved for this session.
// Anonymous sessions carry no signature and must never be mistaken for
// wallet-verified ones.
func (s *Session) Verified() bool {
	return s.IdentityType.WalletIdentity() && s.Signature != ""
}

// IdentityAssertion is the verified content of a signed identity assertion.
type IdentityAssertion struct {
	SessionID    string       `json:"sessionId"`
	UserID       string       `json:"userId"`
	IdentityType IdentityType `json:"identityType"`
	Address      string       `json:"address,omitempty"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}
