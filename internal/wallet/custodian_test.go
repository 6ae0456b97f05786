package wallet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCustodian(t *testing.T, chain string) (*Custodian, *credentials.Store, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default().WithBotsRoot(root)
	cfg.Wallet.SecretKeyPath = filepath.Join(root, "secret_key.txt")
	cfg.Wallet.Chain = chain
	store := credentials.NewStore(cfg)
	c, err := NewCustodian(cfg, store)
	require.NoError(t, err)
	return c, store, cfg
}

func TestGenerateWalletPersistsEncryptedKey(t *testing.T) {
	c, store, _ := newTestCustodian(t, "solana")
	require.NoError(t, store.AddAccount("acct1"))

	address, err := c.GenerateWallet(context.Background(), "acct1")
	require.NoError(t, err)
	require.NotEmpty(t, address)

	path := filepath.Join(store.AccountDir("acct1"), "solana", address+".json")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var sealed string
	require.NoError(t, json.Unmarshal(raw, &sealed))

	priv, err := c.GetPrivateKey("acct1", address)
	require.NoError(t, err)
	assert.NotContains(t, sealed, priv)

	scheme, _ := Scheme("solana")
	derived, err := scheme.AddressFromPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, address, derived)

	accountInfo, err := store.LoadAccountInfo("acct1")
	require.NoError(t, err)
	assert.Equal(t, address, accountInfo.Wallet)
}

func TestGetWalletAddressFallsBackToAccountInfo(t *testing.T) {
	c, store, cfg := newTestCustodian(t, "ethereum")
	require.NoError(t, store.AddAccount("acct1"))

	address, err := c.GenerateWallet(context.Background(), "acct1")
	require.NoError(t, err)

	// a fresh custodian has an empty cache but the same key file
	c2, err := NewCustodian(cfg, store)
	require.NoError(t, err)
	got, err := c2.GetWalletAddress("acct1")
	require.NoError(t, err)
	assert.Equal(t, address, got)

	_, err = c2.GetPrivateKey("acct1", address)
	require.NoError(t, err)
}

func TestWalletNotFound(t *testing.T) {
	c, store, _ := newTestCustodian(t, "solana")
	require.NoError(t, store.AddAccount("acct1"))

	_, err := c.GetWalletAddress("acct1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrWalletNotFound))

	_, err = c.GetPrivateKey("acct1", "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrWalletNotFound))

	_, err = c.GenerateWallet(context.Background(), "nobody")
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))
}

func TestGenerateWalletReplacesAccountWallet(t *testing.T) {
	c, store, _ := newTestCustodian(t, "solana")
	require.NoError(t, store.AddAccount("acct1"))

	first, err := c.GenerateWallet(context.Background(), "acct1")
	require.NoError(t, err)
	second, err := c.GenerateWallet(context.Background(), "acct1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, err := c.GetWalletAddress("acct1")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}
