// Package auth issues and verifies HS256 JSON Web Tokens. Feed clients
// authenticate with them and license tokens carry the premium status.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the registered claims plus the fields gophvault uses.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"cid,omitempty"`
	Status   string `json:"status,omitempty"`
}

// GenerateToken returns a token for clientID valid for validityDuration.
func GenerateToken(clientID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	return IssueToken(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ClientID: clientID,
	}, secretKey)
}

// IssueToken signs arbitrary claims.
func IssueToken(c Claims, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString. An expired token yields its claims
// together with common.ErrTokenExpired; any other failure yields
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return claims, common.ErrTokenExpired
	}
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// GetClientIDFromToken returns the client identifier of a valid token.
func GetClientIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}
