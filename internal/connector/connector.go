package connector

import (
	"context"

	"github.com/shopspring/decimal"
)

// Connector is the narrow view of an exchange adapter the synchronizer needs.
type Connector interface {
	Name() string
	UpdateBalances(ctx context.Context) error
	UpdateTradingRules(ctx context.Context) error
	AllBalances() map[string]decimal.Decimal
	AvailableBalance(token string) decimal.Decimal
	LastTradedPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error)
}

// Factory builds a connector for one account from its stored keys.
type Factory func(account string, keys map[string]string) (Connector, error)

// DefaultFactories is the statically compiled connector table.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		PaperTradeName: NewPaperTrade,
	}
}
