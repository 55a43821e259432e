package approval

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// decisionClaims binds a one-click decision link to a single request and a
// single guardian.
type decisionClaims struct {
	RequestID string `json:"request_id"`
	UID       string `json:"uid"`
	Approve   bool   `json:"approve"`
	jwt.RegisteredClaims
}

// TokenIssuer signs short-lived decision tokens embedded in guardian
// notification links so a tap decides without a full login.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

func (i *TokenIssuer) Issue(requestID, guardianUID string, approve bool) (string, error) {
	now := time.Now()
	claims := decisionClaims{
		RequestID: requestID,
		UID:       guardianUID,
		Approve:   approve,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify returns the request id, guardian uid and verdict carried by a valid
// token.
func (i *TokenIssuer) Verify(token string) (requestID, guardianUID string, approve bool, err error) {
	var claims decisionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", "", false, fmt.Errorf("parse decision token: %w", err)
	}
	if !parsed.Valid {
		return "", "", false, fmt.Errorf("invalid decision token")
	}
	return claims.RequestID, claims.UID, claims.Approve, nil
}
