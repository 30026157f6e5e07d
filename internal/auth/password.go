package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashKey returns a bcrypt hash of the access key using DefaultCost.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckKey compares a bcrypt hashed key with its possible plaintext equivalent.
func CheckKey(hash string, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
