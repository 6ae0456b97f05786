package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
)

// Registry 管理每个 (account, connector) 的连接器实例, 按需懒加载
type Registry struct {
	store *credentials.Store

	mu         sync.RWMutex
	factories  map[string]Factory
	accounts   map[string]map[string]Connector // Key: account -> connector name
	evictHooks []func(account, connector string)
	log        *slog.Logger
}

func NewRegistry(store *credentials.Store, factories map[string]Factory) *Registry {
	if factories == nil {
		factories = DefaultFactories()
	}
	return &Registry{
		store:     store,
		factories: factories,
		accounts:  make(map[string]map[string]Connector),
		log:       logger.Component("connector_registry"),
	}
}

// Register adds or replaces a connector factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnEvict registers a callback run after a connector is removed from an account.
func (r *Registry) OnEvict(fn func(account, connector string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictHooks = append(r.evictHooks, fn)
}

// InitializeAll scans every account on disk and builds its connectors. Failures are logged and skipped.
func (r *Registry) InitializeAll(ctx context.Context) {
	created := r.Discover(ctx)
	r.log.Info("connectors initialized", "accounts", len(r.Accounts()), "created", created)
}

// Discover builds connectors for credential files not yet in the registry and returns how many were created.
func (r *Registry) Discover(ctx context.Context) int {
	accounts, err := r.store.ListAccounts()
	if err != nil {
		r.log.Error("failed to list accounts", "error", err)
		return 0
	}
	created := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			return created
		}
		r.AddAccount(account)
		names, err := r.store.ListCredentials(account)
		if err != nil {
			r.log.Error("failed to list credentials", "account", account, "error", err)
			continue
		}
		for _, name := range names {
			if r.has(account, name) {
				continue
			}
			if _, err := r.GetOrCreate(account, name); err != nil {
				metrics.ConnectorFailures.WithLabelValues(name, "init").Inc()
				r.log.Error("failed to initialize connector", "account", account, "connector", name, "error", err)
				continue
			}
			created++
		}
	}
	return created
}

func (r *Registry) has(account, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[account][name]
	return ok
}

// Holds reports whether c is still the cached connector for (account, name).
// A connector that was evicted or rebuilt since a snapshot no longer holds.
func (r *Registry) Holds(account, name string, c Connector) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.accounts[account][name]
	return ok && cur == c
}

// GetOrCreate returns the cached connector or builds it from the stored keys.
func (r *Registry) GetOrCreate(account, name string) (Connector, error) {
	r.mu.RLock()
	if c, ok := r.accounts[account][name]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	c, err := r.build(account, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.accounts[account][name]; ok {
		return existing, nil
	}
	if r.accounts[account] == nil {
		r.accounts[account] = make(map[string]Connector)
	}
	r.accounts[account][name] = c
	return c, nil
}

func (r *Registry) build(account, name string) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrConnectorInit, "connector %s is not supported", name)
	}
	keys, err := r.store.LoadConnectorKeys(account, name)
	if err != nil {
		return nil, err
	}
	c, err := safeBuild(factory, account, keys)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrConnectorInit, fmt.Sprintf("failed to build connector %s for %s", name, account), err)
	}
	return c, nil
}

func safeBuild(f Factory, account string, keys map[string]string) (c Connector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("connector factory panic: %v", rec)
		}
	}()
	return f(account, keys)
}

// AddConnectorKeys stores keys, rebuilds the connector and primes its balances.
func (r *Registry) AddConnectorKeys(ctx context.Context, account, name string, keys map[string]string) (Connector, error) {
	r.mu.RLock()
	_, supported := r.factories[name]
	r.mu.RUnlock()
	if !supported {
		return nil, apperrors.Newf(apperrors.ErrConnectorInit, "connector %s is not supported", name)
	}
	if err := r.store.SaveConnectorKeys(account, name, keys); err != nil {
		return nil, err
	}
	c, err := r.build(account, name)
	if err != nil {
		return nil, err
	}
	if err := c.UpdateBalances(ctx); err != nil {
		return nil, apperrors.New(apperrors.ErrConnectorInit, fmt.Sprintf("connector %s rejected the keys", name), err)
	}

	r.mu.Lock()
	if r.accounts[account] == nil {
		r.accounts[account] = make(map[string]Connector)
	}
	r.accounts[account][name] = c
	r.mu.Unlock()
	return c, nil
}

// RemoveCredential deletes the credential file and evicts the cached connector.
func (r *Registry) RemoveCredential(account, name string) error {
	if err := r.store.DeleteCredential(account, name); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.accounts[account], name)
	hooks := append([]func(string, string){}, r.evictHooks...)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(account, name)
	}
	return nil
}

// AddAccount makes the account known with an empty connector set.
func (r *Registry) AddAccount(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account]; !ok {
		r.accounts[account] = make(map[string]Connector)
	}
}

func (r *Registry) RemoveAccount(account string) {
	r.mu.Lock()
	delete(r.accounts, account)
	r.mu.Unlock()
}

func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.accounts))
	for account := range r.accounts {
		out = append(out, account)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the account -> connector table.
func (r *Registry) Snapshot() map[string]map[string]Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]Connector, len(r.accounts))
	for account, connectors := range r.accounts {
		cc := make(map[string]Connector, len(connectors))
		for name, c := range connectors {
			cc[name] = c
		}
		out[account] = cc
	}
	return out
}
