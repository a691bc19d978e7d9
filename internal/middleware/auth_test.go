package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitystory/humanstudy/internal/auth"
)

func setupApp(secret string) *fiber.App {
	app := fiber.New()
	m := NewAuthMiddleware(secret)
	app.Get("/me", m.Authenticate(), NewRateLimiter(nil).SubmitLimit(1), func(c *fiber.Ctx) error {
		return c.SendString(GetDeviceID(c))
	})
	return app
}

func TestAuthenticateAcceptsHeaderAndQuery(t *testing.T) {
	app := setupApp("secret")
	token, _, err := auth.IssueDeviceToken("secret", "device-42", time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "device-42", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/me?token="+token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAuthenticateRejects(t *testing.T) {
	app := setupApp("secret")
	other, _, err := auth.IssueDeviceToken("other", "device-42", time.Hour, time.Now())
	require.NoError(t, err)

	cases := map[string]string{
		"missing":     "",
		"bad format":  "Token abc",
		"bad signing": "Bearer " + other,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, 401, resp.StatusCode)
		})
	}
}
