// Package credstore persists the session credential across process restarts.
// It is the only client-side durable state.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/crypto/credcrypto"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
)

// ErrInvalidCredential rejects a credential that holds only one of the two tokens.
var ErrInvalidCredential = errors.New("credential must carry both tokens or neither")

// Store persists the current credential. Load returns (nil, nil) when no
// credential is stored.
type Store interface {
	Load() (*model.Credential, error)
	Save(*model.Credential) error
	Clear() error
}

const (
	credFile = "credential.bin"
	keyFile  = "key.bin"

	keyPurpose = "rkshop/credential-v1"
)

// File stores the credential sealed on disk under dir. The sealing key is
// derived from a random master key stored beside it (0600).
type File struct {
	dir string
}

var _ Store = (*File)(nil)

// DefaultDir resolves the per-user config directory for client state.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "rkshop")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rkshop")
}

// NewFile constructs a file-backed store rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) credPath() string { return filepath.Join(f.dir, credFile) }
func (f *File) keyPath() string  { return filepath.Join(f.dir, keyFile) }

// sealKey loads (or creates on first use) the master key and derives the
// credential sealing key from it.
func (f *File) sealKey() ([]byte, error) {
	master, err := os.ReadFile(f.keyPath())
	if errors.Is(err, os.ErrNotExist) {
		master, err = credcrypto.Rand(credcrypto.KeyLen)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(f.dir, 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(f.keyPath(), master, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return credcrypto.DeriveKey(master, keyPurpose)
}

// Load reads and unseals the stored credential, if any.
func (f *File) Load() (*model.Credential, error) {
	blob, err := os.ReadFile(f.credPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	key, err := f.sealKey()
	if err != nil {
		return nil, err
	}
	plain, err := credcrypto.Open(key, blob)
	if err != nil {
		return nil, fmt.Errorf("unseal credential: %w", err)
	}
	var c model.Credential
	if err := json.Unmarshal(plain, &c); err != nil {
		return nil, err
	}
	if !c.Valid() {
		return nil, nil
	}
	return &c, nil
}

// Save seals and writes the credential atomically (write+rename).
func (f *File) Save(c *model.Credential) error {
	if err := validate(c); err != nil {
		return err
	}
	key, err := f.sealKey()
	if err != nil {
		return err
	}
	plain, err := json.Marshal(c)
	if err != nil {
		return err
	}
	blob, err := credcrypto.Seal(key, plain)
	if err != nil {
		return err
	}
	tmp := f.credPath() + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.credPath())
}

// Clear removes the stored credential. Absent file is not an error.
func (f *File) Clear() error {
	err := os.Remove(f.credPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func validate(c *model.Credential) error {
	if c == nil {
		return ErrInvalidCredential
	}
	if (c.AccessToken == "") != (c.RefreshToken == "") {
		return ErrInvalidCredential
	}
	if c.AccessToken == "" {
		return ErrInvalidCredential
	}
	return nil
}

// Memory is an in-process store for tests.
type Memory struct {
	cred *model.Credential
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load() (*model.Credential, error) {
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *Memory) Save(c *model.Credential) error {
	if err := validate(c); err != nil {
		return err
	}
	cpy := *c
	m.cred = &cpy
	return nil
}

func (m *Memory) Clear() error {
	m.cred = nil
	return nil
}
