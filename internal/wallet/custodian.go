package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
)

// Custodian generates account wallets and keeps their private keys encrypted at rest.
// Plaintext keys are never cached.
type Custodian struct {
	store  *credentials.Store
	cipher *Cipher
	scheme KeyScheme

	mu      sync.RWMutex
	wallets map[string]string // account -> address
	log     *slog.Logger
}

func NewCustodian(cfg *config.Config, store *credentials.Store) (*Custodian, error) {
	scheme, err := Scheme(cfg.Wallet.Chain)
	if err != nil {
		return nil, err
	}
	key, err := LoadOrCreateKey(cfg.Wallet.SecretKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load wallet secret key: %w", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Custodian{
		store:   store,
		cipher:  c,
		scheme:  scheme,
		wallets: make(map[string]string),
		log:     logger.Component("wallet"),
	}, nil
}

func (c *Custodian) Chain() string {
	return c.scheme.Chain()
}

// GenerateWallet creates a new keypair for the account and replaces its account_info.json.
func (c *Custodian) GenerateWallet(ctx context.Context, account string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !c.store.Exists(account) {
		return "", apperrors.Newf(apperrors.ErrNotFound, "account %s does not exist", account)
	}

	address, privateKey, err := c.scheme.Generate()
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to generate keypair", err)
	}
	if err := c.savePrivateKey(account, address, privateKey); err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to store private key", err)
	}
	if err := c.store.SaveAccountInfo(account, model.AccountInfo{Wallet: address}); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.wallets[account] = address
	c.mu.Unlock()

	c.log.Info("wallet generated", "account", account, "chain", c.scheme.Chain(), "address", address)
	return address, nil
}

func (c *Custodian) keyPath(account, address string) string {
	return filepath.Join(c.store.AccountDir(account), c.scheme.Chain(), address+".json")
}

func (c *Custodian) savePrivateKey(account, address, privateKey string) error {
	sealed, err := c.cipher.Encrypt(privateKey)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return err
	}
	path := c.keyPath(account, address)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	// WriteFile keeps the mode of a pre-existing file
	return os.Chmod(path, 0600)
}

// GetWalletAddress reads the cache first, then account_info.json.
func (c *Custodian) GetWalletAddress(account string) (string, error) {
	c.mu.RLock()
	address, ok := c.wallets[account]
	c.mu.RUnlock()
	if ok && address != "" {
		return address, nil
	}

	info, err := c.store.LoadAccountInfo(account)
	if err != nil || info.Wallet == "" {
		return "", apperrors.New(apperrors.ErrWalletNotFound, fmt.Sprintf("no wallet found for bot account %s", account), err)
	}

	c.mu.Lock()
	c.wallets[account] = info.Wallet
	c.mu.Unlock()
	return info.Wallet, nil
}

// GetPrivateKey decrypts the stored key on every call.
func (c *Custodian) GetPrivateKey(account, address string) (string, error) {
	if err := credentials.ValidateName(address); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.keyPath(account, address))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperrors.Newf(apperrors.ErrWalletNotFound, "wallet %s not found for account %s", address, account)
		}
		return "", apperrors.New(apperrors.ErrInternal, "failed to read wallet file", err)
	}
	var sealed string
	if err := json.Unmarshal(data, &sealed); err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "corrupt wallet file", err)
	}
	plain, err := c.cipher.Decrypt(sealed)
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to decrypt wallet", err)
	}
	return plain, nil
}

// Forget drops the cached address, used when the account is deleted.
func (c *Custodian) Forget(account string) {
	c.mu.Lock()
	delete(c.wallets, account)
	c.mu.Unlock()
}
