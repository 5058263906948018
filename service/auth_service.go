package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
)

const (
	// DefaultChallengeTTL is the signing window for issued challenges.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultWalletSessionTTL applies to sessions backed by a signed
	// challenge; DefaultAnonymousSessionTTL to the lower-trust path.
	DefaultWalletSessionTTL    = 30 * 24 * time.Hour
	DefaultAnonymousSessionTTL = 7 * 24 * time.Hour

	// sessionTokenBytes gives 256 bits of entropy per token.
	sessionTokenBytes = 32

	// nonceBytes gives 256 bits of entropy per challenge nonce.
	nonceBytes = 32
)

// AuthConfig tunes authentication lifetimes. Zero values fall back to
// defaults. Domain is the service name embedded in challenge messages.
type AuthConfig struct {
	Domain       string
	ChallengeTTL time.Duration
	WalletTTL    time.Duration
	AnonymousTTL time.Duration
}

// AuthService issues challenges, validates wallet signatures and owns the
// session lifecycle.
type AuthService struct {
	challenges ports.ChallengeStore
	sessions   ports.SessionStore
	events     ports.EventPublisher
	log        *slog.Logger

	domain       string
	challengeTTL time.Duration
	walletTTL    time.Duration
	anonymousTTL time.Duration
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	challenges ports.ChallengeStore,
	sessions ports.SessionStore,
	events ports.EventPublisher,
	log *slog.Logger,
	cfg AuthConfig,
) *AuthService {
	if cfg.Domain == "" {
		cfg.Domain = "curia.network"
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.WalletTTL <= 0 {
		cfg.WalletTTL = DefaultWalletSessionTTL
	}
	if cfg.AnonymousTTL <= 0 {
		cfg.AnonymousTTL = DefaultAnonymousSessionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		challenges:   challenges,
		sessions:     sessions,
		events:       events,
		log:          log,
		domain:       cfg.Domain,
		challengeTTL: cfg.ChallengeTTL,
		walletTTL:    cfg.WalletTTL,
		anonymousTTL: cfg.AnonymousTTL,
	}
}

// IssueChallenge generates a new single-use challenge for the claimed
// identity. The returned message is the exact byte sequence the wallet must
// sign.
func (s *AuthService) IssueChallenge(ctx context.Context, identityType core.IdentityType, address string) (*core.Challenge, error) {
	if !identityType.WalletIdentity() {
		return nil, fmt.Errorf("%w: identity type %q cannot be challenged", core.ErrMalformedInput, identityType)
	}
	if !core.ValidAddress(address) {
		return nil, fmt.Errorf("%w: %q is not a valid address", core.ErrMalformedInput, address)
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().UTC()
	challenge := &core.Challenge{
		ID:           uuid.New().String(),
		IdentityType: identityType,
		Address:      address,
		Nonce:        hex.EncodeToString(nonce),
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.challengeTTL),
	}
	challenge.Message = core.ChallengeMessage(
		s.domain, identityType, address, challenge.ID, challenge.Nonce,
		challenge.IssuedAt, challenge.ExpiresAt,
	)

	if err := s.challenges.InsertChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	return challenge, nil
}

// ValidateSignature checks a submitted signature against its challenge and
// atomically consumes the challenge. Exactly one concurrent call may succeed
// per challenge; the loser sees core.ErrChallengeConsumed.
func (s *AuthService) ValidateSignature(ctx context.Context, challengeID, signature string) (*core.Challenge, error) {
	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.IsExpired(time.Now()) {
		return nil, core.ErrChallengeExpired
	}
	if challenge.Consumed {
		return nil, core.ErrChallengeConsumed
	}

	signer, err := recoverSigner(challenge.Message, signature)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(signer, challenge.Address) {
		return nil, core.ErrSignatureMismatch
	}

	if err := s.challenges.ConsumeChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return challenge, nil
}

// Login exchanges a validated signature for a session and its opaque token.
func (s *AuthService) Login(ctx context.Context, challengeID, signature string) (string, *core.Session, error) {
	challenge, err := s.ValidateSignature(ctx, challengeID, signature)
	if err != nil {
		return "", nil, err
	}

	session := &core.Session{
		ID:            uuid.New().String(),
		UserID:        strings.ToLower(challenge.Address),
		IdentityType:  challenge.IdentityType,
		Address:       challenge.Address,
		ChallengeID:   challenge.ID,
		SignedMessage: challenge.Message,
		Signature:     signature,
	}
	token, err := s.insertSession(ctx, session, s.walletTTL)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("session created",
		"session", session.ID, "identity_type", session.IdentityType, "address", session.Address)
	return token, session, nil
}

// CreateAnonymousSession mints a lower-trust session without proof of wallet
// control. It bypasses challenges entirely and carries no signature fields;
// downstream consumers distinguish it by identityType.
func (s *AuthService) CreateAnonymousSession(ctx context.Context) (string, *core.Session, error) {
	session := &core.Session{
		ID:           uuid.New().String(),
		UserID:       uuid.New().String(),
		IdentityType: core.IdentityAnonymous,
	}
	token, err := s.insertSession(ctx, session, s.anonymousTTL)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("anonymous session created", "session", session.ID)
	return token, session, nil
}

func (s *AuthService) insertSession(ctx context.Context, session *core.Session, ttl time.Duration) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.LastAccessedAt = now
	session.ExpiresAt = now.Add(ttl)
	session.Active = true

	if err := s.sessions.InsertSession(ctx, token, session); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// ValidateSession resolves an opaque token to its session record. Expiry is
// checked before revocation; a hit updates lastAccessedAt as a side effect
// that never fails the validation itself.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(time.Now()) {
		return nil, core.ErrSessionExpired
	}
	if !session.Active {
		return nil, core.ErrSessionRevoked
	}

	now := time.Now().UTC()
	if err := s.sessions.TouchSession(ctx, token, now); err != nil {
		s.log.Warn("failed to update session access time", "session", session.ID, "err", err)
	} else {
		session.LastAccessedAt = now
	}
	return session, nil
}

// Logout revokes the session behind the token. Revocation is idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return err
	}
	return s.revoke(ctx, session)
}

// RevokeSession is the administrative revocation path.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.revoke(ctx, &core.Session{ID: sessionID})
}

func (s *AuthService) revoke(ctx context.Context, session *core.Session) error {
	if err := s.sessions.RevokeSession(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	session.Active = false
	if s.events != nil {
		if err := s.events.PublishSessionRevoked(ctx, session); err != nil {
			// The store already holds the revocation, which is the part
			// that matters for security.
			s.log.Warn("failed to publish session revoked event", "session", session.ID, "err", err)
		}
	}
	return nil
}

// recoverSigner recovers the EIP-191 personal-sign signer of message.
func recoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: signature is not valid hex", core.ErrSignatureMismatch)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: signature must be %d bytes", core.ErrSignatureMismatch, crypto.SignatureLength)
	}

	// Wallets return V as 27/28; go-ethereum expects 0/1.
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[crypto.RecoveryIDOffset] >= 27 {
		recovery[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), recovery)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSignatureMismatch, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// newSessionToken returns a high-entropy opaque token. It is never derived
// from user-controllable input.
func newSessionToken() (string, error) {
	bytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
