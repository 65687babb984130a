package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates size random bytes and returns them hex-encoded,
// so the resulting string is twice as long as size.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomBytes returns size bytes read from crypto/rand.
func RandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Use it to drop keys and passphrases from memory once they are no longer needed.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
