package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const PaperTradeName = "paper_trade"

// PaperTrade is a simulated connector whose balances and prices come from its credential file:
//
//	balances: "SOL:10,USDC:250"
//	prices:   "SOL-USDC:20"
type PaperTrade struct {
	account string
	raw     map[string]string

	mu             sync.RWMutex
	balances       map[string]decimal.Decimal
	available      map[string]decimal.Decimal
	prices         map[string]decimal.Decimal
	rulesRefreshes int
}

func NewPaperTrade(account string, keys map[string]string) (Connector, error) {
	p := &PaperTrade{account: account, raw: keys}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PaperTrade) load() error {
	balances, err := parsePairs(p.raw["balances"], ":")
	if err != nil {
		return fmt.Errorf("paper_trade balances: %w", err)
	}
	available := balances
	if raw, ok := p.raw["available"]; ok {
		if available, err = parsePairs(raw, ":"); err != nil {
			return fmt.Errorf("paper_trade available: %w", err)
		}
	}
	prices, err := parsePairs(p.raw["prices"], ":")
	if err != nil {
		return fmt.Errorf("paper_trade prices: %w", err)
	}
	p.mu.Lock()
	p.balances, p.available, p.prices = balances, available, prices
	p.mu.Unlock()
	return nil
}

func (p *PaperTrade) Name() string { return PaperTradeName }

func (p *PaperTrade) UpdateBalances(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.load()
}

func (p *PaperTrade) UpdateTradingRules(ctx context.Context) error {
	p.mu.Lock()
	p.rulesRefreshes++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *PaperTrade) AllBalances() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out
}

func (p *PaperTrade) AvailableBalance(token string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available[token]
}

func (p *PaperTrade) LastTradedPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		if price, ok := p.prices[pair]; ok {
			out[pair] = price
		}
	}
	return out, nil
}

// parsePairs parses "A:1,B:2" style lists. Keys are split on the last separator so pairs like SOL-USDC work.
func parsePairs(raw, sep string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		idx := strings.LastIndex(item, sep)
		if idx <= 0 {
			return nil, fmt.Errorf("malformed entry %q", item)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(item[idx+1:]))
		if err != nil {
			return nil, fmt.Errorf("malformed amount in %q: %w", item, err)
		}
		out[strings.ToUpper(strings.TrimSpace(item[:idx]))] = value
	}
	return out, nil
}
