package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/cryptox"
)

// ErrWrongPassphrase is returned when the passphrase does not open an
// existing credentials file.
var ErrWrongPassphrase = errors.New("wrong passphrase for credentials file")

const kekSaltSize = 16

type sealedItem struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type fileFormat struct {
	Salt []byte `json:"salt"`
	// Check is a sealed constant that proves the passphrase before any item
	// is touched.
	Check sealedItem            `json:"check"`
	Items map[string]sealedItem `json:"items"`
}

var checkPlaintext = []byte("bizkeeper-credstore-v1")

// FileStore persists secrets in a JSON file. Each value is sealed with
// AES-GCM under a key derived from the user's passphrase with Argon2id.
type FileStore struct {
	mu   sync.Mutex
	path string
	kek  []byte
	data fileFormat
}

// OpenFileStore opens the credentials file at path, creating it when it
// does not exist yet. The passphrase is not retained; only the derived key is.
func OpenFileStore(path string, passphrase []byte) (*FileStore, error) {
	s := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		salt, err := common.RandomBytes(kekSaltSize)
		if err != nil {
			return nil, fmt.Errorf("salt generation: %w", err)
		}
		s.kek = cryptox.DeriveKEK(passphrase, salt)
		ct, nonce, err := cryptox.Seal(s.kek, checkPlaintext)
		if err != nil {
			return nil, fmt.Errorf("seal check value: %w", err)
		}
		s.data = fileFormat{Salt: salt, Check: sealedItem{Nonce: nonce, Ciphertext: ct}, Items: map[string]sealedItem{}}
		if err := s.flush(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if s.data.Items == nil {
		s.data.Items = map[string]sealedItem{}
	}
	s.kek = cryptox.DeriveKEK(passphrase, s.data.Salt)
	if _, err := cryptox.Open(s.kek, s.data.Check.Nonce, s.data.Check.Ciphertext); err != nil {
		common.WipeByteArray(s.kek)
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Items[name]
	if !ok {
		return "", false, nil
	}
	plain, err := cryptox.Open(s.kek, item.Nonce, item.Ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", name, err)
	}
	return string(plain), true, nil
}

func (s *FileStore) Set(ctx context.Context, name string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, nonce, err := cryptox.Seal(s.kek, []byte(value))
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	prev, had := s.data.Items[name]
	s.data.Items[name] = sealedItem{Nonce: nonce, Ciphertext: ct}
	if err := s.flush(); err != nil {
		if had {
			s.data.Items[name] = prev
		} else {
			delete(s.data.Items, name)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data.Items[name]
	if !had {
		return nil
	}
	delete(s.data.Items, name)
	if err := s.flush(); err != nil {
		s.data.Items[name] = prev
		return err
	}
	return nil
}

// Close wipes the derived key from memory.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.kek)
	return nil
}

func (s *FileStore) flush() error {
	b, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credentials dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
