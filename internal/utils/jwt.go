package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. Expired is deliberately distinct from
// invalid: only an expired credential is eligible for silent renewal, a
// tampered or unparseable one requires full re-authentication.
var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token is expired")
	ErrTokenInvalid   = errors.New("token is invalid")
)

var jwtSecret []byte

// SetJWTSecret sets the signing key used for access tokens.
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// Claims is the access credential payload. All identity fields are
// required; tokens missing any of them are rejected at parse time.
type Claims struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed access token for the given identity.
func GenerateToken(userID uint, email, role string, isAdmin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		Email:   email,
		Role:    role,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken verifies a signed access token and returns its claims.
// Returns ErrTokenMalformed when the value does not decompose into three
// non-empty segments, ErrTokenExpired past expiry, ErrTokenInvalid for
// any other signature or payload failure.
func ParseToken(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrTokenMalformed
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, ErrTokenMalformed
		}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == 0 || claims.Email == "" || claims.Role == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// AssertionClaims is the payload of an externally issued login assertion.
type AssertionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// ParseAssertion verifies an external login assertion signed with the
// shared assertion secret. Expired and invalid assertions fail alike:
// there is no renewal path for assertions.
func ParseAssertion(tokenString, secret string) (*AssertionClaims, error) {
	claims := &AssertionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Email == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
