package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/study-artifacts/utils/auth"
	"github.com/sahilchouksey/study-artifacts/utils/response"
)

const claimsKey = "claims"

// AuthMiddleware guards the session routes with bearer access tokens
type AuthMiddleware struct {
	tokens *auth.JWTManager
}

func NewAuthMiddleware(tokens *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Required rejects requests without a valid access token and stores the
// caller's claims for GetUserID and IsAdmin
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.tokens.Verify(token)
		if errors.Is(err, auth.ErrExpiredToken) {
			return response.Unauthorized(c, "Token has expired")
		}
		if err != nil {
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// GetUserID returns the authenticated caller
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok && id != 0
}

// IsAdmin reports whether the caller may act on any user's sessions
func IsAdmin(c *fiber.Ctx) bool {
	claims, ok := c.Locals(claimsKey).(*auth.Claims)
	return ok && claims.CanSeeAllSessions()
}
