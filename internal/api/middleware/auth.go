// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/myworkflows/chat-service/internal/domain/errors"
	"github.com/myworkflows/chat-service/internal/services/identity"
)

const (
	contextKeyToken  = "auth_token"
	contextKeyUserID = "user_id"
)

// AuthMiddleware verifies Bearer access tokens.
type AuthMiddleware struct {
	verifier identity.Verifier
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(verifier identity.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate returns a gin middleware that validates the Bearer token.
// The token and its subject are stored in the context for downstream handlers.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			HandleError(c, domainerrors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		token := strings.TrimSpace(parts[1])
		userID, err := m.verifier.VerifySubject(token)
		if err != nil {
			GetRequestLogger(c).Info().Err(err).Msg("rejected access token")
			HandleError(c, domainerrors.NewUnauthorizedError("invalid access token"))
			return
		}

		c.Set(contextKeyToken, token)
		c.Set(contextKeyUserID, userID)

		c.Next()
	}
}

// GetToken retrieves the auth token from the gin context.
func GetToken(c *gin.Context) string {
	return c.GetString(contextKeyToken)
}

// GetUserID retrieves the authenticated user id from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}
