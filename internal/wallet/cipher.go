package wallet

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
)

var (
	ErrDecrypt        = errors.New("wallet: decryption failed")
	ErrInvalidKey     = errors.New("wallet: secret key must be 32 bytes")
	ErrShortCipher    = errors.New("wallet: ciphertext too short")
	ErrEmptyPlaintext = errors.New("wallet: empty plaintext")
)

// Cipher seals private keys with a single process-wide secretbox key.
type Cipher struct {
	key [KeySize]byte
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	c := &Cipher{}
	copy(c.key[:], key)
	return c, nil
}

// LoadOrCreateKey reads the key file, generating and persisting a fresh key (0600) on first run.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidKey, path, len(data))
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	// never overwrite a key another process just created
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return LoadOrCreateKey(path)
		}
		return nil, err
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt returns base64(nonce || secretbox(plaintext)).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < NonceSize+secretbox.Overhead {
		return "", ErrShortCipher
	}
	var nonce [NonceSize]byte
	copy(nonce[:], raw[:NonceSize])
	plain, ok := secretbox.Open(nil, raw[NonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
