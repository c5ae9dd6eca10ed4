package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/plainlyhq/plainly-core/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2-SHA512 parameters. Changing them invalidates every stored hash, so
// they are fixed here rather than configurable.
const (
	pbkdf2Iterations = 10000
	pbkdf2KeyLen     = 64
	saltBytes        = 16
)

// NewSalt returns a fresh random salt, hex encoded.
func NewSalt() string {
	return common.MakeRandHexString(saltBytes)
}

// HashPassword derives the stored hash for a password and hex salt.
func HashPassword(password, saltHex string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return hex.EncodeToString(key), nil
}

// VerifyPassword reports whether the password matches the stored hash,
// comparing in constant time.
func VerifyPassword(password, saltHex, storedHash string) bool {
	computed, err := HashPassword(password, saltHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
