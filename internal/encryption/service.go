// Package encryption owns the master key and exposes envelope encryption,
// decryption and hashing over opaque payloads.
//
// Every call to Encrypt draws a fresh salt and IV, derives a one-time key
// from the master key with PBKDF2 and encrypts with AES-256-CBC/PKCS#7. The
// result is a JSON EncryptedEnvelope. CBC without a MAC is malleable; callers
// that need integrity verify a checksum of the plaintext themselves, as the
// backup store does.
package encryption

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"unicode/utf8"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/credstore"
	"github.com/dmitrijs2005/bizkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

// KeyName is the logical name of the master key in the credential store.
const KeyName = "encryption_key"

// EncryptedEnvelope is the serialized result of one encryption.
type EncryptedEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// Service is safe for concurrent use. Construct one per process in the
// composition root and pass it to consumers.
type Service struct {
	store  credstore.Store
	logger logging.Logger

	mu          sync.RWMutex
	key         string
	initialized bool
}

func NewService(store credstore.Store, logger logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Initialize makes sure a master key exists, generating and persisting 256
// random bits if the credential store has none. It is idempotent.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	key, ok, err := s.store.Get(ctx, KeyName)
	if err != nil {
		s.initialized = false
		return fmt.Errorf("%w: %v", common.ErrKeyInitialization, err)
	}

	if !ok || key == "" {
		raw, err := cryptox.NewKey()
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrKeyInitialization, err)
		}
		key = hex.EncodeToString(raw)
		common.WipeByteArray(raw)

		if err := s.store.Set(ctx, KeyName, key); err != nil {
			return fmt.Errorf("%w: %v", common.ErrKeyInitialization, err)
		}
		s.logger.Info(ctx, "generated new master key")
	}

	s.key = key
	s.initialized = true
	return nil
}

// Initialized reports whether a master key is loaded.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Service) masterKey(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	if s.initialized {
		k := []byte(s.key)
		s.mu.RUnlock()
		return k, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initializeLocked(ctx); err != nil {
		return nil, err
	}
	return []byte(s.key), nil
}

// Encrypt encrypts data and returns the JSON EncryptedEnvelope. Strings and
// byte slices are used verbatim; any other value is JSON-encoded first. A nil
// value is rejected with common.ErrInvalidInput.
func (s *Service) Encrypt(ctx context.Context, data any) (string, error) {
	master, err := s.masterKey(ctx)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(master)

	if isNil(data) {
		return "", common.ErrInvalidInput
	}
	plain, err := Canonical(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	iv, err := cryptox.NewIV()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	dek := cryptox.DeriveKey(master, salt)
	defer common.WipeByteArray(dek)

	ct, err := cryptox.EncryptCBC(dek, iv, []byte(plain))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	out, err := json.Marshal(EncryptedEnvelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		Salt:       hex.EncodeToString(salt),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	return string(out), nil
}

// Decrypt reverses Encrypt using the current master key. Any malformed
// envelope, wrong key or non-UTF-8 result is reported as common.ErrDecryption.
// It does not verify checksums.
func (s *Service) Decrypt(ctx context.Context, envelope string) (string, error) {
	master, err := s.masterKey(ctx)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(master)

	var env EncryptedEnvelope
	if err := json.Unmarshal([]byte(envelope), &env); err != nil {
		return "", fmt.Errorf("%w: parse envelope: %v", common.ErrDecryption, err)
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return "", fmt.Errorf("%w: bad salt", common.ErrDecryption)
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", fmt.Errorf("%w: bad iv", common.ErrDecryption)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", common.ErrDecryption)
	}

	dek := cryptox.DeriveKey(master, salt)
	defer common.WipeByteArray(dek)

	plain, err := cryptox.DecryptCBC(dek, iv, ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: result is not valid UTF-8", common.ErrDecryption)
	}
	return string(plain), nil
}

// EncryptFile encrypts binary content by hex-encoding it first.
func (s *Service) EncryptFile(ctx context.Context, content []byte) (string, error) {
	if content == nil {
		return "", common.ErrInvalidInput
	}
	return s.Encrypt(ctx, hex.EncodeToString(content))
}

// DecryptFile reverses EncryptFile.
func (s *Service) DecryptFile(ctx context.Context, envelope string) ([]byte, error) {
	plain, err := s.Decrypt(ctx, envelope)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not hex", common.ErrDecryption)
	}
	return b, nil
}

// GenerateHash returns the hex SHA-256 digest of the string form of data.
func (s *Service) GenerateHash(data string) string {
	return cryptox.SHA256Hex([]byte(data))
}

// CompareHash recomputes the digest of data and compares it with hash in
// constant time.
func (s *Service) CompareHash(data, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(s.GenerateHash(data)), []byte(hash)) == 1
}

// ChangeEncryptionKey replaces the master key in the store and in memory.
// Envelopes written under the previous key are left untouched and can no
// longer be decrypted by this service.
func (s *Service) ChangeEncryptionKey(ctx context.Context, newKey string) error {
	if newKey == "" {
		return common.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initializeLocked(ctx); err != nil {
		return err
	}
	if err := s.store.Set(ctx, KeyName, newKey); err != nil {
		return fmt.Errorf("failed to change encryption key: %w", err)
	}
	s.key = newKey
	s.logger.Info(ctx, "master key rotated")
	return nil
}

// ClearEncryptionKey deletes the persisted master key. The next operation
// initializes a brand new one.
func (s *Service) ClearEncryptionKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, KeyName); err != nil {
		return fmt.Errorf("failed to clear encryption key: %w", err)
	}
	s.key = ""
	s.initialized = false
	return nil
}

// Canonical returns the string form used for encryption and checksums:
// strings and byte slices verbatim, everything else as JSON.
func Canonical(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
