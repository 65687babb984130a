package encryption

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/credstore"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	getErr error
	setErr error
	delErr error
}

func (f *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, f.getErr
}
func (f *failingStore) Set(context.Context, string, string) error { return f.setErr }
func (f *failingStore) Delete(context.Context, string) error      { return f.delErr }

func newTestService(t *testing.T) (*Service, *credstore.MemoryStore) {
	t.Helper()
	store := credstore.NewMemoryStore()
	return NewService(store, logging.NewNopLogger()), store
}

func TestInitialize_GeneratesAndPersistsKey(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)

	require.NoError(t, s.Initialize(ctx))
	require.True(t, s.Initialized())

	key, ok, err := store.Get(ctx, KeyName)
	require.NoError(t, err)
	require.True(t, ok)
	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	require.Len(t, raw, 32)

	// idempotent
	require.NoError(t, s.Initialize(ctx))
	again, _, _ := store.Get(ctx, KeyName)
	require.Equal(t, key, again)
}

func TestInitialize_ReusesStoredKey(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyName, "existing-key"))

	s := NewService(store, logging.NewNopLogger())
	require.NoError(t, s.Initialize(ctx))

	env, err := s.Encrypt(ctx, "payload")
	require.NoError(t, err)

	other := NewService(store, logging.NewNopLogger())
	got, err := other.Decrypt(ctx, env)
	require.NoError(t, err)
	require.Equal(t, "payload", got)
}

func TestInitialize_StoreFailure(t *testing.T) {
	ctx := context.Background()

	s := NewService(&failingStore{getErr: errors.New("locked")}, logging.NewNopLogger())
	err := s.Initialize(ctx)
	require.ErrorIs(t, err, common.ErrKeyInitialization)
	require.False(t, s.Initialized())

	s = NewService(&failingStore{setErr: errors.New("read only")}, logging.NewNopLogger())
	_, err = s.Encrypt(ctx, "x")
	require.ErrorIs(t, err, common.ErrKeyInitialization)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	type record struct {
		ID       int     `json:"id"`
		Quantity float64 `json:"quantity"`
	}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello, world", "hello, world"},
		{"empty string", "", ""},
		{"unicode", "Produktion Ω 数据", "Produktion Ω 数据"},
		{"bytes", []byte("raw"), "raw"},
		{"struct", record{ID: 1, Quantity: 100}, `{"id":1,"quantity":100}`},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
		{"number", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := s.Encrypt(ctx, tt.in)
			require.NoError(t, err)

			got, err := s.Decrypt(ctx, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncrypt_EnvelopeShapeAndFreshness(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	a, err := s.Encrypt(ctx, "same input")
	require.NoError(t, err)
	b, err := s.Encrypt(ctx, "same input")
	require.NoError(t, err)

	var ea, eb EncryptedEnvelope
	require.NoError(t, json.Unmarshal([]byte(a), &ea))
	require.NoError(t, json.Unmarshal([]byte(b), &eb))

	salt, err := hex.DecodeString(ea.Salt)
	require.NoError(t, err)
	require.Len(t, salt, 16)
	iv, err := hex.DecodeString(ea.IV)
	require.NoError(t, err)
	require.Len(t, iv, 16)
	_, err = base64.StdEncoding.DecodeString(ea.Ciphertext)
	require.NoError(t, err)

	assert.NotEqual(t, ea.Salt, eb.Salt)
	assert.NotEqual(t, ea.IV, eb.IV)
	assert.NotEqual(t, ea.Ciphertext, eb.Ciphertext)
}

func TestEncrypt_NilInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.Encrypt(ctx, nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	var p *struct{}
	_, err = s.Encrypt(ctx, p)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDecrypt_Failures(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	env, err := s.Encrypt(ctx, "important numbers")
	require.NoError(t, err)

	var e EncryptedEnvelope
	require.NoError(t, json.Unmarshal([]byte(env), &e))

	badIV := e
	badIV.IV = "zz"
	truncated := e
	raw, _ := base64.StdEncoding.DecodeString(e.Ciphertext)
	truncated.Ciphertext = base64.StdEncoding.EncodeToString(raw[:len(raw)-3])

	for name, in := range map[string]string{
		"not json":  "definitely not json",
		"bad iv":    mustJSON(t, badIV),
		"truncated": mustJSON(t, truncated),
		"no salt":   `{"ciphertext":"AAAA","iv":"00","salt":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Decrypt(ctx, in)
			require.ErrorIs(t, err, common.ErrDecryption)
		})
	}
}

func TestChangeEncryptionKey(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)

	old, err := s.Encrypt(ctx, "written under the old key")
	require.NoError(t, err)

	require.NoError(t, s.ChangeEncryptionKey(ctx, "brand-new-key"))
	stored, _, _ := store.Get(ctx, KeyName)
	require.Equal(t, "brand-new-key", stored)

	fresh, err := s.Encrypt(ctx, "written under the new key")
	require.NoError(t, err)
	got, err := s.Decrypt(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, "written under the new key", got)

	got, err = s.Decrypt(ctx, old)
	if err == nil {
		require.NotEqual(t, "written under the old key", got)
	} else {
		require.ErrorIs(t, err, common.ErrDecryption)
	}

	require.ErrorIs(t, s.ChangeEncryptionKey(ctx, ""), common.ErrInvalidInput)
}

func TestClearEncryptionKey(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)

	require.NoError(t, s.Initialize(ctx))
	first, _, _ := store.Get(ctx, KeyName)

	require.NoError(t, s.ClearEncryptionKey(ctx))
	require.False(t, s.Initialized())
	_, ok, _ := store.Get(ctx, KeyName)
	require.False(t, ok)

	_, err := s.Encrypt(ctx, "x")
	require.NoError(t, err)
	second, ok, _ := store.Get(ctx, KeyName)
	require.True(t, ok)
	require.NotEqual(t, first, second)
}

func TestEncryptFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	content := []byte{0x00, 0xff, 0x10, 0x80}
	env, err := s.EncryptFile(ctx, content)
	require.NoError(t, err)

	got, err := s.DecryptFile(ctx, env)
	require.NoError(t, err)
	require.Equal(t, content, got)

	_, err = s.EncryptFile(ctx, nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	plain, err := s.Encrypt(ctx, "not hex")
	require.NoError(t, err)
	_, err = s.DecryptFile(ctx, plain)
	require.ErrorIs(t, err, common.ErrDecryption)
}

func TestHash(t *testing.T) {
	s, _ := newTestService(t)

	h := s.GenerateHash("abc")
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
	require.True(t, s.CompareHash("abc", h))
	require.False(t, s.CompareHash("abd", h))
	require.False(t, s.CompareHash("abc", h[:10]))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
