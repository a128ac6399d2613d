package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealSaltLen    = 16
	sealIterations = 4096
)

var ErrSealed = errors.New("storage: value cannot be unsealed")

func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, sealIterations, 32, sha256.New)
}

// seal encrypts data as salt || nonce || ciphertext. The key name is bound as
// additional data so sealed values cannot be moved between keys.
func seal(data, passphrase []byte, name string) ([]byte, error) {
	salt := make([]byte, sealSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, data, []byte(name))
	return append(append(salt, nonce...), ciphertext...), nil
}

func unseal(data, passphrase []byte, name string) ([]byte, error) {
	if len(data) < sealSaltLen+12 {
		return nil, fmt.Errorf("%w: data too short", ErrSealed)
	}
	salt := data[:sealSaltLen]
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := data[sealSaltLen : sealSaltLen+gcm.NonceSize()]
	plain, err := gcm.Open(nil, nonce, data[sealSaltLen+gcm.NonceSize():], []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealed, err)
	}
	return plain, nil
}

func newGCM(passphrase, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealedKV encrypts values at rest with a passphrase before handing them to
// the wrapped backend. Keys are stored in clear.
type SealedKV struct {
	inner      KV
	passphrase []byte
}

func NewSealedKV(inner KV, passphrase string) *SealedKV {
	return &SealedKV{inner: inner, passphrase: []byte(passphrase)}
}

func (s *SealedKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return unseal(v, s.passphrase, key)
}

func (s *SealedKV) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := seal(value, s.passphrase, key)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedKV) Close() error {
	return s.inner.Close()
}
