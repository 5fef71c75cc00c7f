package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrMalformedIdentity is returned when the stored identity cannot be decoded
var ErrMalformedIdentity = errors.New("malformed kitchen identity")

// IdentityStore is the local persisted key/value storage the login flow writes to
type IdentityStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// LoadIdentity reads the identity under IdentityKey. A missing key returns
// nil with no error.
func LoadIdentity(store IdentityStore) (*Identity, error) {
	raw, ok, err := store.Get(IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IdentityKey, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var identity Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIdentity, err)
	}
	if !identity.Valid() {
		return nil, nil
	}
	return &identity, nil
}

// SaveIdentity writes identity under IdentityKey
func SaveIdentity(store IdentityStore, identity Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return store.Set(IdentityKey, string(data))
}

// LocalStore is a file-backed IdentityStore. The file holds a flat JSON
// object of string values.
type LocalStore struct {
	path string
	mu   sync.Mutex
}

// NewLocalStore creates a LocalStore persisted at path
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// DefaultStorePath returns the per-user location of the local store
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "kiosk", "local-storage.json")
}

func (s *LocalStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *LocalStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *LocalStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.write(values)
}

func (s *LocalStore) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local store: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode local store: %w", err)
	}
	return values, nil
}

func (s *LocalStore) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create local store dir: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write local store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
