package cryptox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	master := []byte("master-key")
	salt := []byte("fixed-salt-16byt")

	key1 := DeriveKey(master, salt)
	key2 := DeriveKey(master, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	master := []byte("master-key")

	key1 := DeriveKey(master, []byte("salt-1"))
	key2 := DeriveKey(master, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestDeriveKEK_Deterministic(t *testing.T) {
	k1 := DeriveKEK([]byte("passphrase"), []byte("salt"))
	k2 := DeriveKEK([]byte("passphrase"), []byte("salt"))
	require.Equal(t, k1, k2)
	require.Len(t, k1, KeySize)
}

func TestCBC_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	iv := bytes.Repeat([]byte{9}, IVSize)

	for _, plain := range [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("exactly 16 bytes"),
		[]byte(`{"production":[{"id":1,"quantity":100}]}`),
	} {
		ct, err := EncryptCBC(key, iv, plain)
		require.NoError(t, err)
		require.Zero(t, len(ct)%IVSize)
		require.Greater(t, len(ct), len(plain))

		got, err := DecryptCBC(key, iv, ct)
		require.NoError(t, err)
		assert.Equal(t, string(plain), string(got))
	}
}

func TestCBC_KnownVector(t *testing.T) {
	// NIST SP 800-38A F.2.5, first block, followed by one full block of padding.
	key, _ := hex.DecodeString("603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plain, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172a")

	ct, err := EncryptCBC(key, iv, plain)
	require.NoError(t, err)
	require.Len(t, ct, 32)
	assert.Equal(t, "f58c4c04d6e5f1ba779eabfb5f7bfbd6", hex.EncodeToString(ct[:16]))
}

func TestDecryptCBC_WrongKeyOrCorruption(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	other := bytes.Repeat([]byte{2}, KeySize)
	iv := bytes.Repeat([]byte{3}, IVSize)

	ct, err := EncryptCBC(key, iv, []byte("some business data"))
	require.NoError(t, err)

	_, err = DecryptCBC(key, iv, ct[:len(ct)-1])
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = DecryptCBC(key, iv, nil)
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	// A wrong key yields garbage; padding validation catches it in the
	// overwhelming majority of cases, otherwise the text differs.
	got, err := DecryptCBC(other, iv, ct)
	if err == nil {
		assert.NotEqual(t, "some business data", string(got))
	} else {
		assert.True(t, errors.Is(err, ErrInvalidPadding))
	}
}

func TestEncryptCBC_BadIV(t *testing.T) {
	_, err := EncryptCBC(bytes.Repeat([]byte{1}, KeySize), []byte("short"), []byte("x"))
	require.Error(t, err)
}

func TestPKCS7Unpad_Invalid(t *testing.T) {
	cases := [][]byte{
		bytes.Repeat([]byte{0}, 16),
		append(bytes.Repeat([]byte{1}, 15), 17),
		append(bytes.Repeat([]byte{1}, 14), 3, 2),
	}
	for _, c := range cases {
		_, err := pkcs7Unpad(c, 16)
		require.ErrorIs(t, err, ErrInvalidPadding)
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{5}, KeySize)

	ct, nonce, err := Seal(key, []byte("secret"))
	require.NoError(t, err)

	got, err := Open(key, nonce, ct)
	require.NoError(t, err)
	require.Equal(t, "secret", string(got))

	ct[0] ^= 0xff
	_, err = Open(key, nonce, ct)
	require.Error(t, err)
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Hex([]byte("abc")))
}

func TestNewSaltIV_Fresh(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, s1, SaltSize)
	require.NotEqual(t, s1, s2)

	iv, err := NewIV()
	require.NoError(t, err)
	require.Len(t, iv, IVSize)

	k, err := NewKey()
	require.NoError(t, err)
	require.Len(t, k, KeySize)
}

func TestNewSalt_RandomFailure(t *testing.T) {
	orig := randomBytes
	t.Cleanup(func() { randomBytes = orig })
	randomBytes = func(int) ([]byte, error) { return nil, errors.New("entropy exhausted") }

	_, err := NewSalt()
	require.Error(t, err)
}
