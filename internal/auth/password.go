package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced at signup.
const MinPasswordLength = 8

var (
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong wraps bcrypt's 72-byte input limit.
	ErrPasswordTooLong = errors.New("password too long")
)

// HashPassword hashes a plaintext password with bcrypt at the default cost.
func HashPassword(password string) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, err
	}
	return hash, nil
}

// CheckPassword reports whether the plaintext password matches the stored
// bcrypt hash.
func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
