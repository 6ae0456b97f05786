package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GoPolymarket/botfleet/internal/connector"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/wallet"
)

// AccountService provisions accounts and keeps the store, wallet cache, connector registry
// and balance snapshot in step.
type AccountService struct {
	store     *credentials.Store
	custodian *wallet.Custodian
	registry  *connector.Registry
	state     *AccountStateService

	// 同一时间只允许一个写操作修改凭证目录
	mu  sync.Mutex
	log *slog.Logger
}

func NewAccountService(store *credentials.Store, custodian *wallet.Custodian, registry *connector.Registry, state *AccountStateService) *AccountService {
	return &AccountService{
		store:     store,
		custodian: custodian,
		registry:  registry,
		state:     state,
		log:       logger.Component("accounts"),
	}
}

func (s *AccountService) ListAccounts() ([]string, error) {
	return s.store.ListAccounts()
}

func (s *AccountService) AddAccount(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.AddAccount(account); err != nil {
		return err
	}
	s.registry.AddAccount(account)
	s.state.AddAccount(account)
	return nil
}

// DeleteAccount removes the account and everything derived from it.
func (s *AccountService) DeleteAccount(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteAccount(account); err != nil {
		return err
	}
	s.registry.RemoveAccount(account)
	s.state.RemoveAccount(account)
	s.custodian.Forget(account)
	return nil
}

func (s *AccountService) ListCredentials(account string) ([]string, error) {
	return s.store.ListCredentials(account)
}

// AddConnectorKeys stores the keys only if the connector accepts them.
func (s *AccountService) AddConnectorKeys(ctx context.Context, account, connectorName string, keys map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.registry.AddConnectorKeys(ctx, account, connectorName, keys); err != nil {
		if rmErr := s.store.DeleteCredential(account, connectorName); rmErr != nil {
			s.log.Warn("failed to roll back rejected credential", "account", account, "connector", connectorName, "error", rmErr)
		}
		return err
	}
	s.log.Info("connector keys added", "account", account, "connector", connectorName)
	return nil
}

func (s *AccountService) RemoveCredential(account, connectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.RemoveCredential(account, connectorName)
}

func (s *AccountService) GenerateWallet(ctx context.Context, account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.custodian.GenerateWallet(ctx, account)
}

func (s *AccountService) GetWalletAddress(account string) (string, error) {
	return s.custodian.GetWalletAddress(account)
}

// SupportedConnectors lists the connector names keys can be added for.
func (s *AccountService) SupportedConnectors() []string {
	return s.registry.Supported()
}
