package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
	"github.com/flotob/curia-sub008/service"
)

// Handlers contains the HTTP handlers for the verification engine.
type Handlers struct {
	auth       *service.AuthService
	evaluator  *service.Evaluator
	locks      ports.LockStore
	assertions ports.AssertionIssuer
}

// NewHandlers creates the handler set.
func NewHandlers(auth *service.AuthService, evaluator *service.Evaluator, locks ports.LockStore, assertions ports.AssertionIssuer) *Handlers {
	return &Handlers{
		auth:       auth,
		evaluator:  evaluator,
		locks:      locks,
		assertions: assertions,
	}
}

// Challenge issues a signing challenge for a claimed wallet identity.
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		IdentityType string `json:"identityType" binding:"required"`
		Address      string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	challenge, err := h.auth.IssueChallenge(c.Request.Context(), core.IdentityType(req.IdentityType), req.Address)
	if err != nil {
		if errors.Is(err, core.ErrMalformedInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challengeId": challenge.ID,
		"message":     challenge.Message,
		"expiresAt":   challenge.ExpiresAt,
	})
}

// Verify exchanges a signed challenge for a session token.
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		ChallengeID string `json:"challengeId" binding:"required"`
		Signature   string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, session, err := h.auth.Login(c.Request.Context(), req.ChallengeID, req.Signature)
	if err != nil {
		status, msg := challengeErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionToken": token,
		"expiresAt":    session.ExpiresAt,
		"identityType": session.IdentityType,
		"address":      session.Address,
	})
}

// Anonymous mints a lower-trust session without any wallet proof.
func (h *Handlers) Anonymous(c *gin.Context) {
	token, session, err := h.auth.CreateAnonymousSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionToken": token,
		"expiresAt":    session.ExpiresAt,
		"identityType": session.IdentityType,
	})
}

// SessionStatus returns the session behind the presented token. The session
// middleware has already validated it.
func (h *Handlers) SessionStatus(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// Assertion mints a short-lived signed identity assertion from the session.
func (h *Handlers) Assertion(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	assertion, err := h.assertions.IssueAssertion(session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue assertion"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assertion": assertion})
}

// Logout revokes the session behind the presented token.
func (h *Handlers) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// PutLock stores a lock policy document. The path id is authoritative.
func (h *Handlers) PutLock(c *gin.Context) {
	var lock core.Lock
	if err := c.ShouldBindJSON(&lock); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lock document"})
		return
	}
	lock.ID = c.Param("id")
	if err := lock.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.locks.PutLock(c.Request.Context(), &lock); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store lock"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLock returns a stored lock policy document.
func (h *Handlers) GetLock(c *gin.Context) {
	lock, err := h.locks.GetLock(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrLockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load lock"})
		return
	}
	c.JSON(http.StatusOK, lock)
}

// Evaluate runs the lock policy for the given identity and returns the full
// per-requirement report.
func (h *Handlers) Evaluate(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	decision, err := h.evaluator.EvaluateLock(c.Request.Context(), req.Identity, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrLockNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "lock not found"})
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "evaluation timed out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, decision)
}

// challengeErrorStatus maps authentication failures to HTTP statuses.
func challengeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrChallengeNotFound):
		return http.StatusNotFound, "challenge not found"
	case errors.Is(err, core.ErrChallengeExpired):
		return http.StatusUnauthorized, "challenge expired"
	case errors.Is(err, core.ErrChallengeConsumed):
		return http.StatusConflict, "challenge already consumed"
	case errors.Is(err, core.ErrSignatureMismatch):
		return http.StatusUnauthorized, "invalid signature"
	case errors.Is(err, core.ErrMalformedInput):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "authentication failed"
}
