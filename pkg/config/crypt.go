package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Cipher encrypts settings files with the short key kept in the key file.
type Cipher interface {
	Encrypt(plaintext []byte, key string) ([]byte, error)
	Decrypt(ciphertext []byte, key string) ([]byte, error)
}

const (
	argon2idIterations  = 1
	argon2idMemory      = 64 * 1024
	argon2idParallelism = 4
	argon2idSaltLength  = 16
	aesKeyLength        = 32
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// AESCipher derives an AES-256 key from the key text with Argon2id and seals with GCM.
// Output layout is salt|nonce|ciphertext.
type AESCipher struct{}

func (AESCipher) Encrypt(plaintext []byte, key string) ([]byte, error) {
	salt := make([]byte, argon2idSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(key, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (AESCipher) Decrypt(ciphertext []byte, key string) ([]byte, error) {
	if len(ciphertext) < argon2idSaltLength {
		return nil, ErrCiphertextTooShort
	}
	salt, rest := ciphertext[:argon2idSaltLength], ciphertext[argon2idSaltLength:]

	gcm, err := newGCM(key, salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(key), salt, argon2idIterations, argon2idMemory, argon2idParallelism, aesKeyLength)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
