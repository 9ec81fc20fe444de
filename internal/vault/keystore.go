package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
)

// FileKeyStore keeps generated keys as 0600 files under Dir.
type FileKeyStore struct {
	Dir string
}

// GetOrCreateKey implements KeyStore. When two processes race to create the
// same key, exactly one file wins and both return its contents.
func (s *FileKeyStore) GetOrCreateKey(service, account string) ([]byte, error) {
	path := filepath.Join(s.Dir, keyFileName(service, account))
	return readOrCreate(path, KeySize)
}

// PassphraseKeyStore derives the key from a passphrase with Argon2id. Only the
// random salt is stored on disk; the key itself never is.
type PassphraseKeyStore struct {
	Dir        string
	Passphrase string
}

const saltSize = 16

// GetOrCreateKey implements KeyStore.
func (s *PassphraseKeyStore) GetOrCreateKey(service, account string) ([]byte, error) {
	if s.Passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt, err := readOrCreate(filepath.Join(s.Dir, keyFileName(service, account)+".salt"), saltSize)
	if err != nil {
		return nil, err
	}
	return DeriveKey([]byte(s.Passphrase), salt), nil
}

// DeriveKey stretches a passphrase into a 256-bit key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

func keyFileName(service, account string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
				return r
			}
			return '_'
		}, s)
	}
	return clean(service) + "." + clean(account) + ".key"
}

// readOrCreate returns the n-byte secret at path, creating it from crypto/rand
// if absent. The new file is fully written under a temp name and then
// hard-linked into place, so readers never observe a partial secret and a
// concurrent creator loses cleanly to the existing file.
func readOrCreate(path string, n int) ([]byte, error) {
	if data, err := readSecret(path, n); err == nil || !errors.Is(err, os.ErrNotExist) {
		return data, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	secret := make([]byte, n)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-key-*")
	if err != nil {
		return nil, fmt.Errorf("create temp key file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("chmod temp key file: %w", err)
	}
	if _, err := tmp.Write(secret); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp key file: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return readSecret(path, n)
		}
		return nil, fmt.Errorf("install key file: %w", err)
	}
	return secret, nil
}

func readSecret(path string, n int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%s: expected %d bytes, found %d", path, n, len(data))
	}
	return data, nil
}
