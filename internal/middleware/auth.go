package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/auth"
	"github.com/infinitystory/humanstudy/pkg/response"
)

// AuthMiddleware resolves the evaluator device from a signed token
type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the device token from the Authorization header, or
// from the token query parameter for websocket upgrades.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.jwtSecret == "" {
			return response.Unauthorized(c, "Authentication not configured")
		}

		tokenString := c.Query("token")
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		claims, err := auth.ValidateDeviceToken(tokenString, m.jwtSecret)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("deviceId", claims.DeviceID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// GetDeviceID extracts the device id from context
func GetDeviceID(c *fiber.Ctx) string {
	if id, ok := c.Locals("deviceId").(string); ok {
		return id
	}
	return ""
}
