package model

// AccountInfo is persisted as account_info.json next to the account credentials.
type AccountInfo struct {
	Wallet string `json:"wallet"`
}

// BotConfig 记录账户绑定的策略配置, 每次重新配置时整体替换
type BotConfig struct {
	StrategyName  string                 `json:"strategy_name"`
	Parameters    map[string]interface{} `json:"parameters"`
	Market        string                 `json:"market"`
	WalletAddress string                 `json:"wallet_address,omitempty"`
}

type CreateBotRequest struct {
	Owner              string                 `json:"owner" binding:"required"`
	StrategyName       string                 `json:"strategy_name" binding:"required"`
	StrategyParameters map[string]interface{} `json:"strategy_parameters"`
	Market             string                 `json:"market" binding:"required"`
}

type CreateBotResponse struct {
	InstanceID    string `json:"instance_id"`
	WalletAddress string `json:"wallet_address"`
	Market        string `json:"market"`
}

type StartBotRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}
