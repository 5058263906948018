package core

import "errors"

var (
	// ErrMalformedInput is returned when an address or requirement parameter is
	// syntactically invalid; such input must never reach the network
	ErrMalformedInput = errors.New("malformed input")

	// ErrVerifierUnavailable is returned when a chain query fails or times out
	ErrVerifierUnavailable = errors.New("verifier unavailable")

	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrChallengeConsumed = errors.New("challenge already consumed")
	ErrSignatureMismatch = errors.New("signature does not match subject address")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
	ErrSessionRevoked  = errors.New("session has been revoked")

	ErrLockNotFound = errors.New("lock not found")

	// ErrStoreOperationFailed is returned when a persistence operation fails
	ErrStoreOperationFailed = errors.New("store operation failed")
)
