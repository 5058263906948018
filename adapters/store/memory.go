package store

import (
	"context"
	"sync"
	"time"

	"github.com/flotob/curia-sub008/core"
)

// MemoryStore is an in-memory implementation of the challenge, session and
// lock stores. It is primarily intended for tests and single-node setups.
type MemoryStore struct {
	mu         sync.RWMutex
	challenges map[string]*core.Challenge
	sessions   map[string]*core.Session // keyed by opaque token
	tokenByID  map[string]string        // session id -> token
	locks      map[string]*core.Lock
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*core.Challenge),
		sessions:   make(map[string]*core.Session),
		tokenByID:  make(map[string]string),
		locks:      make(map[string]*core.Lock),
	}
}

func (s *MemoryStore) InsertChallenge(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	s.challenges[c.ID] = &c
	return nil
}

func (s *MemoryStore) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	c := *challenge
	return &c, nil
}

// ConsumeChallenge flips the consumed flag under the store lock, so exactly
// one concurrent caller succeeds.
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return core.ErrChallengeNotFound
	}
	if challenge.Consumed {
		return core.ErrChallengeConsumed
	}
	challenge.Consumed = true
	return nil
}

func (s *MemoryStore) InsertSession(ctx context.Context, token string, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := *session
	s.sessions[token] = &sess
	s.tokenByID[sess.ID] = token
	return nil
}

func (s *MemoryStore) GetSessionByToken(ctx context.Context, token string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	sess := *session
	return &sess, nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return core.ErrSessionNotFound
	}
	session.LastAccessedAt = at
	return nil
}

// RevokeSession is idempotent: revoking an unknown or already revoked
// session succeeds.
func (s *MemoryStore) RevokeSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokenByID[sessionID]
	if !ok {
		return nil
	}
	if session, ok := s.sessions[token]; ok {
		session.Active = false
	}
	return nil
}

// PutLock and GetLock clone the document both ways: a shallow copy would
// share the category and requirement slices with the caller.
func (s *MemoryStore) PutLock(ctx context.Context, lock *core.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[lock.ID] = lock.Clone()
	return nil
}

func (s *MemoryStore) GetLock(ctx context.Context, id string) (*core.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locks[id]
	if !ok {
		return nil, core.ErrLockNotFound
	}
	return lock.Clone(), nil
}

// Clear removes all data. Useful for resetting state between tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges = make(map[string]*core.Challenge)
	s.sessions = make(map[string]*core.Session)
	s.tokenByID = make(map[string]string)
	s.locks = make(map[string]*core.Lock)
}
