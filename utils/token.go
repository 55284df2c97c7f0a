package utils

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the access token claims issued by the auth service. Only the
// username is read here.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseToken validates a token and returns its claims if valid. An empty
// issuer accepts any issuer.
func ParseToken(tokenStr string, secret []byte, issuer string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return nil, fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	return claims, nil
}
