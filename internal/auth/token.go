package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	subClaim = "sub"
	expClaim = "exp"
)

// DefaultExpiration is the lifetime of tokens issued at login.
const DefaultExpiration = 24 * time.Hour

// TokenService issues and verifies the HS256 tokens that gate both the
// REST surface and the chat handshake.
type TokenService struct {
	signingKey []byte
}

func NewTokenService(signingKey []byte) *TokenService {
	return &TokenService{signingKey: signingKey}
}

// Create returns a signed token whose subject is the user id.
func (t *TokenService) Create(userID string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subClaim: userID,
		expClaim: time.Now().Add(exp).Unix(),
	})

	return token.SignedString(t.signingKey)
}

// Verify parses and validates a token and returns the user id it was
// issued for.
func (t *TokenService) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims[subClaim].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("invalid subject claim")
	}

	return userID, nil
}
