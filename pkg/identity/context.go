// Package identity holds the per-process session identity shared by every
// outbound request: the session id used to correlate telemetry and the
// authorization token installed by the auth lifecycle.
package identity

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// AuthorizationScheme is the scheme prefix of the Authorization header.
const AuthorizationScheme = "Token"

// SessionContext is the explicit replacement for process-wide mutable auth
// state. The auth manager is its only writer; transports and clients read it.
// SessionContext is safe for concurrent use.
type SessionContext struct {
	sessionID string

	mu     sync.RWMutex
	token  string
	userID string
}

// NewSessionContext creates a context with a fresh random session id.
func NewSessionContext() *SessionContext {
	return NewSessionContextWithID(uuid.New().String())
}

// NewSessionContextWithID creates a context with a caller-chosen session id.
func NewSessionContextWithID(sessionID string) *SessionContext {
	return &SessionContext{sessionID: sessionID}
}

// SessionID returns the session id. It never changes for the lifetime of the context.
func (c *SessionContext) SessionID() string {
	return c.sessionID
}

// Install sets the token and user id used for subsequent requests.
func (c *SessionContext) Install(token, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.userID = userID
}

// Clear removes the installed token and user id.
func (c *SessionContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.userID = ""
}

// Token returns the installed token, or "" when unauthenticated.
func (c *SessionContext) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func (c *SessionContext) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// AuthorizationHeader returns the Authorization header value, or "" when no
// token is installed.
func (c *SessionContext) AuthorizationHeader() string {
	token := c.Token()
	if token == "" {
		return ""
	}
	return AuthorizationScheme + " " + token
}

// Apply sets or removes the Authorization header on req.
func (c *SessionContext) Apply(req *http.Request) {
	if header := c.AuthorizationHeader(); header != "" {
		req.Header.Set("Authorization", header)
		return
	}
	req.Header.Del("Authorization")
}
