// Package secrets implements a per-identity, authenticated-encrypted
// key-value store. Ciphertext is AES-256-GCM (via common/crypto); the master
// key is sourced from an OS keychain first and a file fallback second, and
// is never silently regenerated when existing ciphertext is present.
//
// Storage shape and the keyring-then-file acquisition order are grounded on
// the teacher's common/crypto package and on common/keyring (itself derived
// from the Aureuma-si vault helpers); the per-identity-file layout follows
// the teacher's one-file-per-agent convention in internal/ruriko/store.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/silverreef/agentcore/common/crypto"
	"github.com/silverreef/agentcore/common/keyring"
	"github.com/silverreef/agentcore/internal/core/coreerrors"
)

// ErrMasterKeyMissing is returned when existing ciphertext is present but no
// master key can be located. Callers must never respond by generating a new
// key: that would silently orphan the existing secrets.
var ErrMasterKeyMissing = fmt.Errorf("secrets: master key missing but ciphertext exists: %w", coreerrors.ErrSecrets)

var identityPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const keyringService = "agentcore-master-key"

// Store is a per-framework-root secrets store. One encrypted file per
// identity lives under dir.
type Store struct {
	dir string

	mu        sync.RWMutex
	masterKey []byte
}

// Open prepares a Store rooted at dir (created with 0700 if absent) and
// resolves the master key per the acquisition order described in the
// package doc. dir is typically {root}/config/secrets.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("secrets: create dir: %w", err)
	}
	s := &Store{dir: dir}
	key, err := s.acquireMasterKey()
	if err != nil {
		return nil, err
	}
	s.masterKey = key
	return s, nil
}

func (s *Store) keyFilePath() string {
	return filepath.Join(s.dir, ".masterkey")
}

func (s *Store) anyCiphertextExists() (bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".ciphertext" {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) acquireMasterKey() ([]byte, error) {
	if hexKey, err := keyring.Get(keyringService, "master"); err == nil {
		return decodeKey(hexKey)
	}

	if raw, err := os.ReadFile(s.keyFilePath()); err == nil {
		return decodeKey(string(raw))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("secrets: read key file: %w", err)
	}

	exists, err := s.anyCiphertextExists()
	if err != nil {
		return nil, fmt.Errorf("secrets: scan existing ciphertext: %w", err)
	}
	if exists {
		return nil, ErrMasterKeyMissing
	}

	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets: generate master key: %w", err)
	}
	hexKey := hex.EncodeToString(key)
	if err := keyring.Set(keyringService, "master", hexKey); err != nil {
		if werr := os.WriteFile(s.keyFilePath(), []byte(hexKey), 0o600); werr != nil {
			return nil, fmt.Errorf("secrets: persist master key: keyring failed (%v), file fallback failed: %w", err, werr)
		}
	}
	return key, nil
}

func decodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: malformed master key: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, crypto.ErrInvalidKeySize
	}
	return key, nil
}

func (s *Store) ciphertextPath(identity string) string {
	return filepath.Join(s.dir, identity+".ciphertext")
}

type bundle map[string]string

func (s *Store) load(identity string) (bundle, error) {
	raw, err := os.ReadFile(s.ciphertextPath(identity))
	if os.IsNotExist(err) {
		return bundle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", identity, err)
	}
	plaintext, err := crypto.Decrypt(s.masterKey, raw)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt %s: %w", identity, err)
	}
	var b bundle
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return nil, fmt.Errorf("secrets: malformed bundle for %s: %w", identity, err)
	}
	return b, nil
}

func (s *Store) save(identity string, b bundle) error {
	plaintext, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("secrets: marshal bundle for %s: %w", identity, err)
	}
	ciphertext, err := crypto.Encrypt(s.masterKey, plaintext)
	if err != nil {
		return fmt.Errorf("secrets: encrypt %s: %w", identity, err)
	}
	return os.WriteFile(s.ciphertextPath(identity), ciphertext, 0o600)
}

func validateIdentity(identity string) error {
	if !identityPattern.MatchString(identity) {
		return fmt.Errorf("secrets: invalid identity name %q", identity)
	}
	return nil
}

// Get returns the value for key under identity, and whether it was present.
func (s *Store) Get(identity, key string) (string, bool, error) {
	if err := validateIdentity(identity); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.load(identity)
	if err != nil {
		return "", false, err
	}
	v, ok := b[key]
	return v, ok, nil
}

// Set stores value under (identity, key), re-encrypting the identity's
// bundle.
func (s *Store) Set(identity, key, value string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.load(identity)
	if err != nil {
		return err
	}
	b[key] = value
	return s.save(identity, b)
}

// Has reports whether key is present for identity.
func (s *Store) Has(identity, key string) (bool, error) {
	_, ok, err := s.Get(identity, key)
	return ok, err
}

// ListKeys returns all keys stored for identity, in no particular order.
func (s *Store) ListKeys(identity string) ([]string, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.load(identity)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys, nil
}
