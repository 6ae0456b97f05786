package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceEntry is one token position of a connector, recomputed from scratch every cycle.
type BalanceEntry struct {
	Token          string          `json:"token"`
	Units          decimal.Decimal `json:"units"`
	Price          decimal.Decimal `json:"price"`
	Value          decimal.Decimal `json:"value"`
	AvailableUnits decimal.Decimal `json:"available_units"`
}

// AccountsState maps account -> connector -> balances.
type AccountsState map[string]map[string][]BalanceEntry

// Clone returns a deep copy safe to hand out of the synchronizer lock.
func (s AccountsState) Clone() AccountsState {
	out := make(AccountsState, len(s))
	for account, connectors := range s {
		cc := make(map[string][]BalanceEntry, len(connectors))
		for name, entries := range connectors {
			cp := make([]BalanceEntry, len(entries))
			copy(cp, entries)
			cc[name] = cp
		}
		out[account] = cc
	}
	return out
}

// HistoryRecord is one line of the account state history file.
type HistoryRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	State     AccountsState `json:"state"`
}
