package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the account a bearer token acts for and the token row
// that must still exist for the token to be honoured.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string
	TokenID   string
}

// GenerateToken signs an HS256 token. A non-positive validity produces a
// token without expiry; revocation then relies on the tokens table alone.
func GenerateToken(accountID, tokenID string, secretKey []byte, validity time.Duration) (string, error) {
	rc := jwt.RegisteredClaims{
		Subject:  accountID,
		ID:       tokenID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if validity > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: rc,
		AccountID:        accountID,
		TokenID:          tokenID,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies signature and expiry and returns the claims. It does
// not consult storage; see services.AuthService for the full check.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.AccountID == "" || claims.TokenID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
