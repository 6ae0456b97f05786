package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/connector"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

const okxPerpetual = "okx_perpetual"

// AccountStateService keeps an in-memory snapshot of every account's balances fresh.
type AccountStateService struct {
	registry     *connector.Registry
	interval     time.Duration
	priceTimeout time.Duration
	quote        string
	banned       map[string]struct{}

	mu    sync.RWMutex
	state model.AccountsState

	updated     chan struct{}
	updatedOnce sync.Once

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	log *slog.Logger
}

func NewAccountStateService(cfg *config.Config, registry *connector.Registry) *AccountStateService {
	banned := make(map[string]struct{}, len(cfg.Accounts.BannedTokens))
	for _, token := range cfg.Accounts.BannedTokens {
		banned[strings.ToUpper(strings.TrimSpace(token))] = struct{}{}
	}
	interval := cfg.Accounts.UpdateInterval
	if interval <= 0 {
		interval = time.Minute
	}
	priceTimeout := cfg.Accounts.PriceTimeout
	if priceTimeout <= 0 {
		priceTimeout = 5 * time.Second
	}
	quote := cfg.Accounts.DefaultQuote
	if quote == "" {
		quote = "USDC"
	}

	s := &AccountStateService{
		registry:     registry,
		interval:     interval,
		priceTimeout: priceTimeout,
		quote:        quote,
		banned:       banned,
		state:        make(model.AccountsState),
		updated:      make(chan struct{}),
		log:          logger.Component("account_state"),
	}
	registry.OnEvict(s.dropConnector)
	return s
}

// Start launches the update loop. Calling Start on a running service is a no-op.
func (s *AccountStateService) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runLoop(ctx, s.done)
}

// Stop cancels the update loop and waits for the in-flight cycle to observe it.
func (s *AccountStateService) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *AccountStateService) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("error updating account state", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// Updated is closed after the first successful snapshot recomputation.
func (s *AccountStateService) Updated() <-chan struct{} {
	return s.updated
}

// RunCycle runs one discover -> balances -> trading rules -> recompute pass.
func (s *AccountStateService) RunCycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("account state cycle panic: %v", rec)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.SyncCycles.WithLabelValues(status).Inc()
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	s.registry.Discover(ctx)
	snapshot := s.registry.Snapshot()

	s.fanOut(ctx, snapshot, "balances", func(ctx context.Context, c connector.Connector) error {
		return c.UpdateBalances(ctx)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	s.fanOut(ctx, snapshot, "trading_rules", func(ctx context.Context, c connector.Connector) error {
		return c.UpdateTradingRules(ctx)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	s.recompute(ctx, snapshot)
	return nil
}

// fanOut runs fn for every connector concurrently. One failure never cancels its siblings.
func (s *AccountStateService) fanOut(ctx context.Context, snapshot map[string]map[string]connector.Connector, phase string, fn func(context.Context, connector.Connector) error) {
	var wg sync.WaitGroup
	for account, connectors := range snapshot {
		for name, c := range connectors {
			wg.Add(1)
			go func(account, name string, c connector.Connector) {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						metrics.ConnectorFailures.WithLabelValues(name, phase).Inc()
						s.log.Error("connector panicked", "phase", phase, "account", account, "connector", name, "panic", rec)
					}
				}()
				if err := fn(ctx, c); err != nil {
					metrics.ConnectorFailures.WithLabelValues(name, phase).Inc()
					s.log.Error("connector refresh failed", "phase", phase, "account", account, "connector", name, "error", err)
				}
			}(account, name, c)
		}
	}
	wg.Wait()
}

func (s *AccountStateService) recompute(ctx context.Context, snapshot map[string]map[string]connector.Connector) {
	s.mu.Lock()
	for account := range s.state {
		if _, ok := snapshot[account]; !ok {
			delete(s.state, account)
		}
	}
	for account, connectors := range snapshot {
		if s.state[account] == nil {
			s.state[account] = make(map[string][]model.BalanceEntry)
		}
		for name := range s.state[account] {
			if _, ok := connectors[name]; !ok {
				delete(s.state[account], name)
			}
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for account, connectors := range snapshot {
		for name, c := range connectors {
			wg.Add(1)
			go func(account, name string, c connector.Connector) {
				defer wg.Done()
				entries, err := s.computeEntries(ctx, c)
				if err != nil {
					metrics.ConnectorFailures.WithLabelValues(name, "state").Inc()
					s.log.Error("error updating balances", "account", account, "connector", name, "error", err)
					entries = []model.BalanceEntry{}
				}

				// RemoveCredential may have evicted c while its prices were in flight
				s.mu.Lock()
				if accountState, ok := s.state[account]; ok && s.registry.Holds(account, name, c) {
					accountState[name] = entries
				}
				s.mu.Unlock()

				if err == nil {
					s.updatedOnce.Do(func() { close(s.updated) })
				}
			}(account, name, c)
		}
	}
	wg.Wait()
}

func (s *AccountStateService) computeEntries(ctx context.Context, c connector.Connector) (entries []model.BalanceEntry, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("connector panic: %v", rec)
		}
	}()

	balances := c.AllBalances()
	tokens := make([]string, 0, len(balances))
	for token, units := range balances {
		if units.IsZero() || s.isBanned(token) {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	pairs := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isQuoteLike(token) {
			pairs = append(pairs, s.DefaultMarket(token))
		}
	}
	prices := s.lastTradedPrices(ctx, c, pairs)

	entries = make([]model.BalanceEntry, 0, len(tokens))
	for _, token := range tokens {
		units := balances[token]
		price := decimal.NewFromInt(1)
		if !isQuoteLike(token) {
			price = prices[s.DefaultMarket(token)]
		}
		entries = append(entries, model.BalanceEntry{
			Token:          token,
			Units:          units,
			Price:          price,
			Value:          price.Mul(units),
			AvailableUnits: c.AvailableBalance(token),
		})
	}
	return entries, nil
}

type priceResult struct {
	prices map[string]decimal.Decimal
	err    error
}

// lastTradedPrices never blocks longer than priceTimeout. Any failure yields zero prices for every pair.
func (s *AccountStateService) lastTradedPrices(ctx context.Context, c connector.Connector, pairs []string) map[string]decimal.Decimal {
	if len(pairs) == 0 {
		return map[string]decimal.Decimal{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.priceTimeout)
	defer cancel()

	resultCh := make(chan priceResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- priceResult{err: fmt.Errorf("price lookup panic: %v", rec)}
			}
		}()
		prices, err := c.LastTradedPrices(ctx, pairs)
		resultCh <- priceResult{prices: prices, err: err}
	}()

	var res priceResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		res.err = apperrors.New(apperrors.ErrBalanceFetchTimeout, "timeout getting last traded prices", ctx.Err())
	}
	if res.err != nil {
		s.log.Error("error getting last traded prices", "connector", c.Name(), "pairs", pairs, "error", res.err)
		return zeroPrices(pairs)
	}

	if c.Name() == okxPerpetual {
		normalized := make(map[string]decimal.Decimal, len(res.prices))
		for pair, price := range res.prices {
			normalized[strings.TrimSuffix(pair, "-SWAP")] = price
		}
		return normalized
	}
	return res.prices
}

func zeroPrices(pairs []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		out[pair] = decimal.Zero
	}
	return out
}

func (s *AccountStateService) isBanned(token string) bool {
	_, ok := s.banned[strings.ToUpper(token)]
	return ok
}

// stablecoins and fiat-like tokens are valued at 1 without a lookup
func isQuoteLike(token string) bool {
	return strings.Contains(strings.ToUpper(token), "USD")
}

func (s *AccountStateService) DefaultMarket(token string) string {
	return token + "-" + s.quote
}

// GetAccountsState returns a deep copy of the current snapshot.
func (s *AccountStateService) GetAccountsState() model.AccountsState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// AddAccount exposes an empty connector map for a newly provisioned account right away.
func (s *AccountStateService) AddAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state[account] == nil {
		s.state[account] = make(map[string][]model.BalanceEntry)
	}
}

func (s *AccountStateService) RemoveAccount(account string) {
	s.mu.Lock()
	delete(s.state, account)
	s.mu.Unlock()
}

func (s *AccountStateService) dropConnector(account, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accountState, ok := s.state[account]; ok {
		delete(accountState, name)
	}
}
