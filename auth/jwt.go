package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Secret returns the HMAC signing key shared by token issuance and
// verification. The fallback keeps a fresh checkout bootable; set JWT_SECRET
// in any real deployment.
func Secret() string {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return s
	}
	return "dev-insecure-secret-change-me"
}

// Principal identifies an authenticated caller. DriverID is set for the
// driver role only. Authorization uses the principal; the completion cascade
// never does (it reads the delivery's stored driver_id instead).
type Principal struct {
	UserID   string
	Role     string // "driver" or "admin"
	DriverID string
}

// Claims carries standard and custom claims for our tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	DriverID string `json:"driver_id,omitempty"`
	jwt.RegisteredClaims
}

// SignJWT creates a signed JWT containing the role and profile identifiers.
func SignJWT(secret string, principal *Principal, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   principal.UserID,
		Role:     principal.Role,
		DriverID: principal.DriverID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Issuer:    "delivery-backend",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
