// Package vault seals folder payloads with AES-256-GCM under a single
// per-install key obtained from a KeyStore.
//
// Blobs are self-contained: nonce || ciphertext || tag. Losing the key
// strands every blob sealed with it; nothing here tries to recover from that.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Default key identity inside the key store.
const (
	DefaultService = "whispr.encryption"
	DefaultAccount = "folderEncryptionKey"
)

const (
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrKeyUnavailable means the key store could neither supply nor create
	// a key. Every vault operation fails while this persists.
	ErrKeyUnavailable = errors.New("vault: key unavailable")
	ErrSealFailed     = errors.New("vault: seal failed")

	// ErrMalformedBlob means the blob is too short to hold a nonce and tag.
	ErrMalformedBlob = errors.New("vault: malformed blob")
	// ErrAuthenticationFailed means the tag did not verify: the blob was
	// tampered with or sealed under a different key.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")
)

// KeyStore hands out a 256-bit key for (service, account), creating it on
// first use. Implementations must make create-if-absent atomic.
type KeyStore interface {
	GetOrCreateKey(service, account string) ([]byte, error)
}

// Vault encrypts and decrypts byte payloads. The key is fetched lazily once
// and reused for the life of the Vault. Safe for concurrent use.
type Vault struct {
	store   KeyStore
	service string
	account string

	group singleflight.Group
	mu    sync.RWMutex
	aead  cipher.AEAD
}

// New creates a vault over store using the default key identity.
func New(store KeyStore) *Vault {
	return &Vault{store: store, service: DefaultService, account: DefaultAccount}
}

// Available reports whether a key can be obtained. A non-nil error wraps
// ErrKeyUnavailable.
func (v *Vault) Available() error {
	_, err := v.cipher()
	return err
}

// Encrypt seals payload into a fresh blob.
func (v *Vault) Encrypt(payload []byte) ([]byte, error) {
	aead, err := v.cipher()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize, nonceSize+len(payload)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	return aead.Seal(nonce, nonce, payload, nil), nil
}

// Decrypt opens a blob produced by Encrypt. It never returns plaintext that
// failed verification.
func (v *Vault) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(blob))
	}
	aead, err := v.cipher()
	if err != nil {
		return nil, err
	}

	payload, err := aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return payload, nil
}

func (v *Vault) cipher() (cipher.AEAD, error) {
	v.mu.RLock()
	aead := v.aead
	v.mu.RUnlock()
	if aead != nil {
		return aead, nil
	}

	// Concurrent first callers share one key store round trip.
	res, err, _ := v.group.Do("key", func() (any, error) {
		v.mu.RLock()
		cached := v.aead
		v.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		key, err := v.store.GetOrCreateKey(v.service, v.account)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrKeyUnavailable, len(key), KeySize)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
		}

		v.mu.Lock()
		v.aead = gcm
		v.mu.Unlock()
		return gcm, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(cipher.AEAD), nil
}
