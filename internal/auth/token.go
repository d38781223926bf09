package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/auctionhq/auctionhouse/internal/store"
)

const tokenTTL = 72 * time.Hour

func secret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// SignToken issues the bearer token for a user. Claims carry the role so
// route guards don't hit the database.
func SignToken(u *store.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"role":    u.Role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// ParseToken validates a bearer token and returns the user id and role.
func ParseToken(tokenStr string) (userID, role string, err error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret(), nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}
	role, _ = claims["role"].(string)
	return userID, role, nil
}
