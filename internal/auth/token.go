package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the device that drives a trip session.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

func SignToken(secret, deviceID string, ttl time.Duration) (string, error) {
	if deviceID == "" {
		return "", errMissingDevice
	}
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedMethod
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.DeviceID == "" {
		return nil, errTokenInvalid
	}
	return claims, nil
}

var (
	errMissingDevice    = errors.New("device id required")
	errUnexpectedMethod = errors.New("unexpected signing method")
	errTokenInvalid     = errors.New("token invalid")
)
