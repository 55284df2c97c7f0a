package utils

import "golang.org/x/crypto/bcrypt"

var generateFromPassword = bcrypt.GenerateFromPassword

// HashPassword returns the bcrypt hash stored in place of a password.
func HashPassword(password string) (string, error) {
	hashed, err := generateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
