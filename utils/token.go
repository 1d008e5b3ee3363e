package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TrackingClaims identify the send an open/click event belongs to. They are
// embedded in tracking URLs as a signed token so the unauthenticated tracking
// endpoints can trust the IDs they carry.
type TrackingClaims struct {
	TenantID     uint   `json:"tenant_id"`
	EnrollmentID uint   `json:"enrollment_id"`
	StepID       uint   `json:"step_id"`
	MessageID    string `json:"message_id"`
	// URLHash pins a click token to its redirect destination so the endpoint
	// cannot be reused as an open redirector. Empty on open/unsubscribe tokens.
	URLHash string `json:"url_hash,omitempty"`
	jwt.RegisteredClaims
}

// NewTrackingToken signs tracking claims. Tokens stay valid for 90 days so
// late opens of old email still register.
func NewTrackingToken(secret string, claims TrackingClaims) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(90 * 24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(secret))
}

// ParseTrackingToken validates a tracking token and returns its claims
func ParseTrackingToken(secret, tokenString string) (*TrackingClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TrackingClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*TrackingClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid tracking token")
}
