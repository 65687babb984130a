// Package cryptox holds the cryptographic primitives used by bizkeeper:
// key derivation, AES-CBC and AES-GCM encryption, and hashing. It is
// stateless; key ownership lives in the encryption service.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length in bytes of every symmetric key (AES-256).
	KeySize = 32
	// SaltSize and IVSize are the per-encryption random value lengths (128 bit).
	SaltSize = 16
	IVSize   = aes.BlockSize
	// Iterations is the PBKDF2 work factor for one-time data keys.
	Iterations = 100000
)

var (
	ErrInvalidPadding    = errors.New("invalid padding")
	ErrInvalidCiphertext = errors.New("ciphertext is not a multiple of the block size")
)

// DeriveKey derives a one-time data-encryption key from the master key and a
// salt using PBKDF2-HMAC-SHA256. The derivation is deterministic.
func DeriveKey(masterKey, salt []byte) []byte {
	return pbkdf2.Key(masterKey, salt, Iterations, KeySize, sha256.New)
}

// DeriveKEK derives a key-encryption key from a user passphrase with Argon2id.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// EncryptCBC encrypts plaintext with AES in CBC mode and PKCS#7 padding.
// The key must be 16, 24 or 32 bytes long and iv must be one block.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.New("iv length must equal block size")
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptCBC reverses EncryptCBC. A wrong key almost always surfaces as
// ErrInvalidPadding.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.New("iv length must equal block size")
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, block.BlockSize())
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}

// Seal encrypts plaintext with AES-GCM under key. A new random nonce is
// generated for each call; it is returned separately from the ciphertext.
func Seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = randomBytes(aesgcm.NonceSize())
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts and authenticates a ciphertext produced by Seal.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
