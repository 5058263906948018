package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flotob/curia-sub008/core"
)

// PostgresStore is the durable implementation of the challenge, session and
// lock stores.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables this store needs.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS auth_challenges (
		id            TEXT PRIMARY KEY,
		identity_type TEXT NOT NULL,
		address       TEXT NOT NULL,
		nonce         TEXT NOT NULL,
		message       TEXT NOT NULL,
		issued_at     TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		consumed      BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS auth_sessions (
		token            TEXT PRIMARY KEY,
		id               TEXT NOT NULL UNIQUE,
		user_id          TEXT NOT NULL,
		identity_type    TEXT NOT NULL,
		address          TEXT,
		challenge_id     TEXT,
		signed_message   TEXT,
		signature        TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		last_accessed_at TIMESTAMPTZ NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE TABLE IF NOT EXISTS locks (
		id       TEXT PRIMARY KEY,
		document JSONB NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertChallenge(ctx context.Context, c *core.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_challenges (id, identity_type, address, nonce, message, issued_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, string(c.IdentityType), c.Address, c.Nonce, c.Message, c.IssuedAt, c.ExpiresAt, c.Consumed)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identity_type, address, nonce, message, issued_at, expires_at, consumed
		FROM auth_challenges WHERE id = $1`, id)

	var c core.Challenge
	var identityType string
	err := row.Scan(&c.ID, &identityType, &c.Address, &c.Nonce, &c.Message, &c.IssuedAt, &c.ExpiresAt, &c.Consumed)
	if err == sql.ErrNoRows {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	c.IdentityType = core.IdentityType(identityType)
	return &c, nil
}

// ConsumeChallenge relies on the conditional UPDATE to serialize concurrent
// consumers: only one statement can move consumed from FALSE to TRUE.
func (s *PostgresStore) ConsumeChallenge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_challenges SET consumed = TRUE WHERE id = $1 AND consumed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: either unknown or already consumed.
	if _, err := s.GetChallenge(ctx, id); err != nil {
		return err
	}
	return core.ErrChallengeConsumed
}

func (s *PostgresStore) InsertSession(ctx context.Context, token string, sess *core.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions
			(token, id, user_id, identity_type, address, challenge_id, signed_message, signature,
			 created_at, expires_at, last_accessed_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		token, sess.ID, sess.UserID, string(sess.IdentityType), sess.Address, sess.ChallengeID,
		sess.SignedMessage, sess.Signature, sess.CreatedAt, sess.ExpiresAt, sess.LastAccessedAt, sess.Active)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *PostgresStore) GetSessionByToken(ctx context.Context, token string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, identity_type, address, challenge_id, signed_message, signature,
		       created_at, expires_at, last_accessed_at, is_active
		FROM auth_sessions WHERE token = $1`, token)

	var sess core.Session
	var identityType string
	err := row.Scan(&sess.ID, &sess.UserID, &identityType, &sess.Address, &sess.ChallengeID,
		&sess.SignedMessage, &sess.Signature, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastAccessedAt, &sess.Active)
	if err == sql.ErrNoRows {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	sess.IdentityType = core.IdentityType(identityType)
	return &sess, nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET last_accessed_at = $2 WHERE token = $1`, token, at)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET is_active = FALSE WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *PostgresStore) PutLock(ctx context.Context, lock *core.Lock) error {
	document, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locks (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`,
		lock.ID, document)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *PostgresStore) GetLock(ctx context.Context, id string) (*core.Lock, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM locks WHERE id = $1`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, core.ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var lock core.Lock
	if err := json.Unmarshal(document, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	return &lock, nil
}
