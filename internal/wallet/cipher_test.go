package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	key, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "secret_key"))
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	plain := "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	sealed, err := c.Encrypt(plain)
	require.NoError(t, err)
	assert.NotContains(t, sealed, plain)

	out, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	// fresh nonce each time
	sealed2, err := c.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestCipherRejectsTamperAndWrongKey(t *testing.T) {
	key := make([]byte, KeySize)
	c, err := NewCipher(key)
	require.NoError(t, err)
	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	other := make([]byte, KeySize)
	other[0] = 1
	c2, err := NewCipher(other)
	require.NoError(t, err)
	_, err = c2.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrShortCipher)

	_, err = NewCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "secret_key")
	first, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, first, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSchemesDeriveAddressDeterministically(t *testing.T) {
	for _, chain := range Chains() {
		t.Run(chain, func(t *testing.T) {
			s, err := Scheme(chain)
			require.NoError(t, err)
			address, priv, err := s.Generate()
			require.NoError(t, err)

			derived, err := s.AddressFromPrivateKey(priv)
			require.NoError(t, err)
			assert.Equal(t, address, derived)

			again, err := s.AddressFromPrivateKey(priv)
			require.NoError(t, err)
			assert.Equal(t, derived, again)
		})
	}

	_, err := Scheme("dogecoin")
	assert.Error(t, err)
}
