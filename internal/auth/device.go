package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "humanstudy-api"

// ErrNoSecret is returned when tokens are requested without a signing secret
var ErrNoSecret = errors.New("jwt secret not configured")

// DeviceClaims identify one evaluator browser. Evaluators are anonymous; the
// device id only namespaces their saved progress.
type DeviceClaims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// IssueDeviceToken signs an HMAC token for deviceID valid for ttl
func IssueDeviceToken(secret, deviceID string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, ErrNoSecret
	}

	expires := now.Add(ttl)
	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateDeviceToken validates a token using HMAC signing
func ValidateDeviceToken(tokenString, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
