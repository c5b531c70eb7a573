package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/service"
)

// sessionKey is the gin context key the resolved session is stored under.
const sessionKey = "session"

// Session resolves the Authorization bearer token to a live session record
// and stores it in the request context. Requests without a valid token are
// rejected.
func Session(sessions *service.SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(401, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.JSON(401, gin.H{"error": "Token required"})
			c.Abort()
			return
		}

		session, err := sessions.Get(c.Request.Context(), token)
		if err != nil {
			c.JSON(401, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireFullAuth rejects requests whose session has not completed the login
// flow. It must run after Session.
func RequireFullAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFrom(c)
		if session == nil || !session.FullyAuthenticated() {
			c.JSON(401, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session stored by the Session middleware, or nil.
func SessionFrom(c *gin.Context) *domain.AuthSession {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil
	}
	session, ok := value.(*domain.AuthSession)
	if !ok {
		return nil
	}
	return session
}
