package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims carry the role and clearance that were current at issue time.
// The auth middleware re-reads both from storage, so they are hints for
// clients, not the source of truth.
type Claims struct {
	UserID   string `json:"uid"`
	Role     string `json:"role"`
	MaxLevel string `json:"max_level"`
	jwtlib.RegisteredClaims
}

type Identity struct {
	UserID   string
	Username string
	Role     string
	MaxLevel string
}

func GenerateToken(id Identity, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   id.UserID,
		Role:     id.Role,
		MaxLevel: id.MaxLevel,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.Username,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token missing uid")
	}
	return claims, nil
}
