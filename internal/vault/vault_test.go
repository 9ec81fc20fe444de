package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStore struct {
	key   []byte
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *staticStore) GetOrCreateKey(service, account string) ([]byte, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.key, s.err
}

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v := New(&staticStore{key: testKey(1)})

	for _, payload := range [][]byte{
		{},
		[]byte("x"),
		[]byte(`[{"id":"01","content":"hello"}]`),
		bytes.Repeat([]byte{0xff, 0x00}, 4096),
	} {
		blob, err := v.Encrypt(payload)
		require.NoError(t, err)
		assert.Len(t, blob, nonceSize+len(payload)+tagSize)

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payload, got))
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	v := New(&staticStore{key: testKey(1)})

	a, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_AnyFlippedBitFails(t *testing.T) {
	v := New(&staticStore{key: testKey(2)})
	blob, err := v.Encrypt([]byte("secret folder payload"))
	require.NoError(t, err)

	for i := range blob {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit

			got, err := v.Decrypt(tampered)
			require.ErrorIs(t, err, ErrAuthenticationFailed, "byte %d bit %d", i, bit)
			require.Nil(t, got)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	blob, err := New(&staticStore{key: testKey(3)}).Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = New(&staticStore{key: testKey(4)}).Decrypt(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecrypt_Malformed(t *testing.T) {
	v := New(&staticStore{key: testKey(1)})

	for _, blob := range [][]byte{nil, {}, make([]byte, nonceSize+tagSize-1)} {
		_, err := v.Decrypt(blob)
		assert.ErrorIs(t, err, ErrMalformedBlob)
	}
}

func TestKeyUnavailable(t *testing.T) {
	v := New(&staticStore{err: errors.New("keychain locked")})

	_, err := v.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = v.Decrypt(make([]byte, 64))
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	assert.ErrorIs(t, v.Available(), ErrKeyUnavailable)
}

func TestKeyUnavailable_WrongLength(t *testing.T) {
	v := New(&staticStore{key: []byte("short")})
	assert.ErrorIs(t, v.Available(), ErrKeyUnavailable)
}

func TestKeyUnavailable_Retried(t *testing.T) {
	store := &staticStore{err: errors.New("not yet")}
	v := New(store)
	require.Error(t, v.Available())

	store.err = nil
	store.key = testKey(5)
	assert.NoError(t, v.Available())
}

func TestKeyFetchedOnce(t *testing.T) {
	store := &staticStore{key: testKey(6), delay: 20 * time.Millisecond}
	v := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Encrypt([]byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := v.Encrypt([]byte("again"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestFileKeyStore_CreatesOnceAndReuses(t *testing.T) {
	dir := t.TempDir()
	store := &FileKeyStore{Dir: dir}

	k1, err := store.GetOrCreateKey(DefaultService, DefaultAccount)
	require.NoError(t, err)
	require.Len(t, k1, KeySize)

	k2, err := (&FileKeyStore{Dir: dir}).GetOrCreateKey(DefaultService, DefaultAccount)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	path := filepath.Join(dir, keyFileName(DefaultService, DefaultAccount))
	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileKeyStore_ConcurrentCreateAgrees(t *testing.T) {
	dir := t.TempDir()

	keys := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := (&FileKeyStore{Dir: dir}).GetOrCreateKey("svc", "acct")
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys[1:] {
		assert.Equal(t, keys[0], k)
	}
}

func TestFileKeyStore_CorruptKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, keyFileName("svc", "acct"))
	require.NoError(t, os.WriteFile(path, []byte("truncated"), 0600))

	_, err := (&FileKeyStore{Dir: dir}).GetOrCreateKey("svc", "acct")
	assert.Error(t, err)
}

func TestPassphraseKeyStore(t *testing.T) {
	dir := t.TempDir()

	k1, err := (&PassphraseKeyStore{Dir: dir, Passphrase: "correct horse"}).GetOrCreateKey("svc", "acct")
	require.NoError(t, err)
	k2, err := (&PassphraseKeyStore{Dir: dir, Passphrase: "correct horse"}).GetOrCreateKey("svc", "acct")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	other, err := (&PassphraseKeyStore{Dir: dir, Passphrase: "battery staple"}).GetOrCreateKey("svc", "acct")
	require.NoError(t, err)
	assert.NotEqual(t, k1, other)

	_, err = (&PassphraseKeyStore{Dir: dir}).GetOrCreateKey("svc", "acct")
	assert.Error(t, err)
}

func TestPassphraseVault_WrongPassphraseCannotDecrypt(t *testing.T) {
	dir := t.TempDir()

	blob, err := New(&PassphraseKeyStore{Dir: dir, Passphrase: "one"}).Encrypt([]byte("folder"))
	require.NoError(t, err)

	_, err = New(&PassphraseKeyStore{Dir: dir, Passphrase: "two"}).Decrypt(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestKeyFileName_Sanitized(t *testing.T) {
	assert.Equal(t, "a_b.c_d.key", keyFileName("a/b", `c\d`))
}
