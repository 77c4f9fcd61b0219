package auth

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

func RandomString(n int) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashResetToken hashes a one-time password reset secret before it is stored.
func HashResetToken(token string) (string, error) {
	return HashPassword(token)
}

func CheckResetToken(secret, hash string) bool {
	return CheckPasswordHash(hash, secret)
}
