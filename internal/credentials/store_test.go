package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default().WithBotsRoot(t.TempDir())
	master := filepath.Join(cfg.Paths.Credentials, cfg.Paths.MasterAccount)
	require.NoError(t, os.MkdirAll(master, 0755))
	for _, name := range TemplateFiles {
		require.NoError(t, os.WriteFile(filepath.Join(master, name), []byte("instance_id: master\n"), 0644))
	}
	return NewStore(cfg)
}

func TestAddAccountCopiesTemplates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddAccount("acct1"))

	for _, name := range TemplateFiles {
		assert.FileExists(t, filepath.Join(s.AccountDir("acct1"), name))
	}
	assert.DirExists(t, filepath.Join(s.AccountDir("acct1"), "connectors"))

	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"acct1"}, accounts)
}

func TestAddAccountTwiceFailsWithoutTouchingFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddAccount("acct1"))

	marker := filepath.Join(s.AccountDir("acct1"), "conf_client.yml")
	require.NoError(t, os.WriteFile(marker, []byte("instance_id: custom\n"), 0644))

	err := s.AddAccount("acct1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAlreadyExists))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "instance_id: custom\n", string(data))
}

func TestAddAccountRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	err := s.AddAccount("../evil")
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}

func TestConnectorKeysLifecycle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddAccount("acct1"))

	require.NoError(t, s.SaveConnectorKeys("acct1", "binance", map[string]string{"api_key": "k", "api_secret": "s"}))

	info, err := os.Stat(filepath.Join(s.AccountDir("acct1"), "connectors", "binance.yml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	names, err := s.ListCredentials("acct1")
	require.NoError(t, err)
	assert.Equal(t, []string{"binance"}, names)

	keys, err := s.LoadConnectorKeys("acct1", "binance")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api_key": "k", "api_secret": "s"}, keys)

	require.NoError(t, s.DeleteCredential("acct1", "binance"))
	names, err = s.ListCredentials("acct1")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBotConfigAndAccountInfo(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddAccount("acct1"))

	_, err := s.LoadBotConfig("acct1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))

	cfg := model.BotConfig{StrategyName: "bollinger_v1", Market: "SOL-USDC", Parameters: map[string]interface{}{"bb_length": float64(100)}}
	require.NoError(t, s.SaveBotConfig("acct1", cfg))
	loaded, err := s.LoadBotConfig("acct1")
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)

	require.NoError(t, s.SaveAccountInfo("acct1", model.AccountInfo{Wallet: "abc"}))
	info, err := s.LoadAccountInfo("acct1")
	require.NoError(t, err)
	assert.Equal(t, "abc", info.Wallet)
}

func TestDeleteAccount(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddAccount("acct1"))

	require.NoError(t, s.DeleteAccount("acct1"))
	assert.NoDirExists(t, s.AccountDir("acct1"))

	err := s.DeleteAccount("acct1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))

	err = s.DeleteAccount("master_account")
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}
