package store

import (
	"crypto/ed25519"
	"errors"
	"os"
	"sync"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
)

// ErrNoKey is returned when the key file does not exist yet.
var ErrNoKey = errors.New("store: key file not found")

// KeyFileStore persists one passphrase-sealed Ed25519 private key.
type KeyFileStore struct {
	path   string
	params crypto.KDFParams
	mu     sync.Mutex
}

// NewKeyFileStore returns a KeyFileStore for the file at path.
func NewKeyFileStore(path string, params crypto.KDFParams) *KeyFileStore {
	return &KeyFileStore{path: path, params: params}
}

// SaveRelayKey seals key under passphrase and writes it atomically.
func (s *KeyFileStore) SaveRelayKey(passphrase string, key domain.Ed25519Private) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := key.Slice()
	defer crypto.Wipe(raw)
	b, err := seal(passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return writeFile(s.path, b, 0o600)
}

// LoadRelayKey reads and unseals the key.
func (s *KeyFileStore) LoadRelayKey(passphrase string) (domain.Ed25519Private, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key domain.Ed25519Private
	b, err := readFile(s.path)
	if err != nil {
		return key, err
	}
	if b == nil {
		return key, ErrNoKey
	}
	raw, err := unseal(passphrase, b)
	if err != nil {
		return key, err
	}
	defer crypto.Wipe(raw)
	if len(raw) != ed25519.PrivateKeySize {
		return key, ErrWrongPassphrase
	}
	copy(key[:], raw)
	return key, nil
}

// LoadOrCreate loads the key, generating and saving a fresh one if the
// file does not exist.
func (s *KeyFileStore) LoadOrCreate(passphrase string) (key domain.Ed25519Private, created bool, err error) {
	key, err = s.LoadRelayKey(passphrase)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return key, false, err
	}
	key, _, err = crypto.GenerateEd25519()
	if err != nil {
		return key, false, err
	}
	if err := s.SaveRelayKey(passphrase, key); err != nil {
		return key, false, err
	}
	return key, true, nil
}

// Exists reports whether the key file is present.
func (s *KeyFileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Compile-time assertion that KeyFileStore implements domain.RelayKeyStore.
var _ domain.RelayKeyStore = (*KeyFileStore)(nil)
