package nordchat

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IdentityStore persists the last authenticated user between runs.
// Load returns "" when nothing is stored.
type IdentityStore interface {
	Load() (string, error)
	Save(user string) error
	Clear() error
}

// MemoryIdentity keeps the identity in memory only.
type MemoryIdentity struct {
	mu   sync.Mutex
	user string
}

func (m *MemoryIdentity) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, nil
}

func (m *MemoryIdentity) Save(user string) error {
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	return nil
}

func (m *MemoryIdentity) Clear() error {
	return m.Save("")
}

// FileIdentity stores the identity as the sole content of one file.
type FileIdentity struct {
	Path string
}

func (f FileIdentity) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", WrapError(ErrorIdentity, "read identity", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f FileIdentity) Save(user string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return WrapError(ErrorIdentity, "create identity dir", err)
	}
	if err := os.WriteFile(f.Path, []byte(user+"\n"), 0o600); err != nil {
		return WrapError(ErrorIdentity, "write identity", err)
	}
	return nil
}

func (f FileIdentity) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return WrapError(ErrorIdentity, "remove identity", err)
	}
	return nil
}
