package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/infinitystory/humanstudy/internal/auth"
	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/pkg/response"
)

// AuthHandler issues anonymous device tokens to evaluator browsers
type AuthHandler struct {
	jwtSecret string
	ttl       time.Duration
}

// NewAuthHandler creates a handler issuing tokens valid for ttl
func NewAuthHandler(jwtSecret string, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{
		jwtSecret: jwtSecret,
		ttl:       ttl,
	}
}

// Device handles POST /auth/device
// @Summary      Issue device token
// @Description  Create an anonymous evaluator device and return a signed token for it
// @Tags         Auth
// @Produce      json
// @Success      201 {object} model.DeviceTokenResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /auth/device [post]
func (h *AuthHandler) Device(c *fiber.Ctx) error {
	return h.issue(c, uuid.New().String(), true)
}

// Refresh handles POST /api/auth/refresh
// @Summary      Refresh device token
// @Description  Extend the token of the calling device, keeping its saved progress
// @Tags         Auth
// @Produce      json
// @Success      200 {object} model.DeviceTokenResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	return h.issue(c, middleware.GetDeviceID(c), false)
}

func (h *AuthHandler) issue(c *fiber.Ctx, deviceID string, created bool) error {
	token, expires, err := auth.IssueDeviceToken(h.jwtSecret, deviceID, h.ttl, time.Now())
	if err == auth.ErrNoSecret {
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeUnauthorized, "Authentication not configured", nil)
	}
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	result := model.DeviceTokenResponse{
		Token:     token,
		DeviceID:  deviceID,
		ExpiresAt: expires,
	}
	if created {
		return response.Created(c, result)
	}
	return response.OK(c, result)
}
