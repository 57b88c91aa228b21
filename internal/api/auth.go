package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// OperatorClaims identify whoever calls the /internal routes.
type OperatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// IssueOperatorToken signs a token accepted by OperatorAuth.
func IssueOperatorToken(secret, name string, ttl time.Duration) (string, error) {
	claims := &OperatorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tkn.SignedString([]byte(secret))
}

// OperatorAuth rejects requests without a valid operator token.
func OperatorAuth(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(OperatorClaims)
		},
	})
}
