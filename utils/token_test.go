package utils_test

import (
	"testing"
	"time"

	"accounts-service/utils"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
)

// signToken mints an HS256 token the way the auth service does.
func signToken(t *testing.T, claims utils.Claims, ttl time.Duration, issuer string, secret []byte) string {
	t.Helper()
	now := time.Now()
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	assert.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	secret := []byte("supersecret")
	claims := utils.Claims{Username: "testuser"}
	claims.ID = "token-id"

	token := signToken(t, claims, time.Minute, "test-issuer", secret)

	parsed, err := utils.ParseToken(token, secret, "test-issuer")
	assert.NoError(t, err)
	assert.Equal(t, claims.Username, parsed.Username)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = utils.ParseToken(token, secret, "")
	assert.NoError(t, err)
}

func TestParseTokenInvalid(t *testing.T) {
	secret := []byte("supersecret")
	_, err := utils.ParseToken("not.a.valid.token", secret, "")
	assert.Error(t, err)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token := signToken(t, utils.Claims{Username: "user"}, time.Minute, "issuer", []byte("one"))

	_, err := utils.ParseToken(token, []byte("two"), "issuer")
	assert.Error(t, err)
}

func TestParseTokenWrongIssuer(t *testing.T) {
	secret := []byte("supersecret")
	token := signToken(t, utils.Claims{Username: "user"}, time.Minute, "someone-else", secret)

	_, err := utils.ParseToken(token, secret, "auth-service")
	assert.ErrorContains(t, err, "issuer")
}

func TestParseTokenExpired(t *testing.T) {
	secret := []byte("supersecret")
	token := signToken(t, utils.Claims{Username: "user"}, -time.Minute, "issuer", secret)

	_, err := utils.ParseToken(token, secret, "issuer")
	assert.Error(t, err)
}

func TestParseTokenInvalidMethod(t *testing.T) {
	now := time.Now()
	claims := utils.Claims{
		Username: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	assert.NoError(t, err)

	_, err = utils.ParseToken(signed, []byte("secret"), "issuer")
	assert.Error(t, err)
}
