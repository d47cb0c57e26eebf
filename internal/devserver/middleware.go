package devserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aixgo-dev/travelintel/pkg/identity"
)

const ctxUserID = "devserver.userID"

// failureInjection answers 503 while the server is set to fail.
func (s *Server) failureInjection() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		failing := s.failing
		s.mu.RUnlock()
		if failing {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, identity.AuthorizationScheme) || token == "" {
		return "", false
	}
	return token, true
}

// requireAuth rejects requests without a valid token.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		subject, err := s.parseToken(raw)
		if err != nil || !s.accountExists(subject) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}
		c.Set(ctxUserID, subject)
		c.Next()
	}
}

// optionalAuth resolves the token when present and rejects only a bad one.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}
		subject, err := s.parseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}
		c.Set(ctxUserID, subject)
		c.Next()
	}
}

// requireSelf rejects access to another user's resources.
func (s *Server) requireSelf() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("userId") != c.GetString(ctxUserID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		c.Next()
	}
}

func (s *Server) accountExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}
