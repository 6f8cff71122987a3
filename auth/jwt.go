// ABOUTME: Signed bearer tokens handed to the client extension after connect
// ABOUTME: The token carries only the user id and platform; credentials stay server-side
package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

type Claims struct {
	UserID   string `json:"id"`
	Platform string `json:"platform"`
	jwt.RegisteredClaims
}

func secret() ([]byte, error) {
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return []byte(s), nil
}

// GenerateToken signs a token identifying the connected user. Tokens do not
// expire on their own; logout deletes the credential row instead.
func GenerateToken(userID string, platform models.Platform) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	claims := Claims{
		UserID:   userID,
		Platform: string(platform),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// DecodeToken validates the signature and returns the embedded identity.
// Any failure maps to the auth error kind so handlers answer 401.
func DecodeToken(tokenString string) (*Claims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, crmerr.Auth("invalid session token").Wrap(err)
	}
	if !token.Valid || claims.UserID == "" || claims.Platform == "" {
		return nil, crmerr.Auth("invalid session token")
	}
	return claims, nil
}
