package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Server.IdempotencyTTL)
	assert.Equal(t, time.Minute, cfg.Accounts.UpdateInterval)
	assert.Equal(t, "USDC", cfg.Accounts.DefaultQuote)
	assert.Equal(t, []string{"NAV", "ARS", "ETHW"}, cfg.Accounts.BannedTokens)
	assert.Equal(t, "solana", cfg.Wallet.Chain)
	assert.Equal(t, "hummingbot", cfg.Fleet.WorkerMarker)
	assert.Equal(t, 10*time.Second, cfg.Broker.CommandTimeout)
	assert.Equal(t, filepath.Join("bots", "credentials"), cfg.Paths.Credentials)
	assert.Equal(t, filepath.Join("bots", "archived"), cfg.Paths.Archive)
	assert.Equal(t, "master_account", cfg.Paths.MasterAccount)
}

func TestWithBotsRootDoesNotMutateOriginal(t *testing.T) {
	base := Default()
	root := t.TempDir()

	cfg := base.WithBotsRoot(root)

	assert.Equal(t, filepath.Join(root, "instances"), cfg.Paths.Instances)
	assert.Equal(t, filepath.Join(root, "data"), cfg.Paths.Data)
	assert.Equal(t, filepath.Join("bots", "instances"), base.Paths.Instances)
}

func TestResolvePathsKeepsAbsolute(t *testing.T) {
	cfg := &Config{Paths: PathsConfig{BotsRoot: "bots", Data: "/var/lib/botfleet", Conf: "conf"}}
	cfg.resolvePaths()

	assert.Equal(t, "/var/lib/botfleet", cfg.Paths.Data)
	assert.Equal(t, filepath.Join("bots", "conf"), cfg.Paths.Conf)
	assert.Empty(t, cfg.Paths.Archive)
}

func TestLoadReadsEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("BOTFLEET_BROKER_ADDR", "redis:6380")
	t.Setenv("BOTFLEET_SERVER_READ_ONLY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Broker.Addr)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Equal(t, "hbot", cfg.Broker.TopicPrefix)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	yml := "server:\n  port: \"9100\"\npaths:\n  bots_root: /srv/bots\nfleet:\n  image: hummingbot/hummingbot:dev\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "/srv/bots/credentials", cfg.Paths.Credentials)
	assert.Equal(t, "hummingbot/hummingbot:dev", cfg.Fleet.Image)
}
