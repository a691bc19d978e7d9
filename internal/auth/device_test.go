package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateDeviceToken(t *testing.T) {
	token, expires, err := IssueDeviceToken("secret", "device-1", time.Hour, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := ValidateDeviceToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "device-1", claims.DeviceID)

	_, err = ValidateDeviceToken(token, "other")
	assert.Error(t, err)
}

func TestExpiredDeviceToken(t *testing.T) {
	token, _, err := IssueDeviceToken("secret", "device-1", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ValidateDeviceToken(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssueWithoutSecret(t *testing.T) {
	_, _, err := IssueDeviceToken("", "device-1", time.Hour, time.Now())
	assert.ErrorIs(t, err, ErrNoSecret)
}
