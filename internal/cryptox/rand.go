package cryptox

import "github.com/dmitrijs2005/bizkeeper/internal/common"

// randomBytes is a test seam for the random source.
var randomBytes = common.RandomBytes

// NewSalt returns a fresh 128-bit salt.
func NewSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// NewIV returns a fresh initialization vector of one AES block.
func NewIV() ([]byte, error) {
	return randomBytes(IVSize)
}

// NewKey returns KeySize bytes of cryptographically secure randomness.
func NewKey() ([]byte, error) {
	return randomBytes(KeySize)
}
