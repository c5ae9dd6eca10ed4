package common

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandByteArray returns n cryptographically random bytes.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken
		panic(err)
	}
	return b
}

// MakeRandHexString returns the hex encoding of n random bytes.
func MakeRandHexString(n int) string {
	return hex.EncodeToString(GenerateRandByteArray(n))
}
