package model

import "github.com/shopspring/decimal"

// WorkerConfig describes a worker container to create.
type WorkerConfig struct {
	InstanceName       string `json:"instance_name" binding:"required"`
	CredentialsProfile string `json:"credentials_profile" binding:"required"`
	Image              string `json:"image"`
	Market             string `json:"market"`
}

const (
	StatusRunning  = "running"
	StatusStopped  = "stopped"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

type Position struct {
	TradingPair      string           `json:"trading_pair"`
	Side             string           `json:"side"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	Amount           decimal.Decimal  `json:"amount"`
	Leverage         *float64         `json:"leverage,omitempty"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealized_pnl"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
}

// ControllerPerformance 单个 controller 的绩效指标
type ControllerPerformance struct {
	TotalPnl        decimal.Decimal `json:"total_pnl"`
	TotalTrades     int64           `json:"total_trades"`
	WinRate         float64         `json:"win_rate"`
	ProfitLossRatio float64         `json:"profit_loss_ratio"`
	SharpeRatio     float64         `json:"sharpe_ratio"`
	MaxDrawdown     float64         `json:"max_drawdown"`
	StartTimestamp  int64           `json:"start_timestamp"`
	EndTimestamp    int64           `json:"end_timestamp"`
	ActivePositions []Position      `json:"active_positions"`
	CloseTypeCounts map[string]int  `json:"close_type_counts"`
}

type ControllerStatus struct {
	Status      string                 `json:"status"`
	Performance *ControllerPerformance `json:"performance,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type LogEntry struct {
	Timestamp int64                  `json:"timestamp"`
	LevelName string                 `json:"level_name"`
	Message   string                 `json:"message"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

type BotStatus struct {
	Status      string                      `json:"status"`
	Performance map[string]ControllerStatus `json:"performance"`
	ErrorLogs   []LogEntry                  `json:"error_logs"`
	GeneralLogs []LogEntry                  `json:"general_logs"`
}

type TradeLog struct {
	Timestamp   int64            `json:"timestamp"`
	TradingPair string           `json:"trading_pair"`
	Side        string           `json:"side"`
	Price       decimal.Decimal  `json:"price"`
	Amount      decimal.Decimal  `json:"amount"`
	Type        string           `json:"type"`
	RealizedPnl *decimal.Decimal `json:"realized_pnl,omitempty"`
	FeeAmount   decimal.Decimal  `json:"fee_amount"`
	FeeToken    string           `json:"fee_token"`
}

// CommandResponse is the reply a worker sends to a broker command.
type CommandResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Trades  []TradeLog `json:"trades,omitempty"`
}
