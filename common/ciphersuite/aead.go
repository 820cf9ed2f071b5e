package ciphersuite

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrKeyLen = errors.New("invalid key length")

type AEADFunc func(key []byte) (cipher.AEAD, error)

// AEAD describes one AEAD algorithm: its key length and a constructor.
type AEAD struct {
	keyLen int
	fn     AEADFunc
}

func (a AEAD) KeyLen() int { return a.keyLen }

func (a AEAD) New(key []byte) (cipher.AEAD, error) {
	if len(key) != a.keyLen {
		return nil, errors.WithStack(ErrKeyLen)
	}
	return a.fn(key)
}

func aeadAES_128_GCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 16 {
		return nil, ErrKeyLen
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func aeadAES_256_GCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrKeyLen
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func aeadChaCha20Poly1305(key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeyLen
	}

	return chacha20poly1305.New(key)
}
