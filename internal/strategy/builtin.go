package strategy

func ptr(f float64) *float64 { return &f }

func init() {
	Register(Definition{
		Name:        "bollinger_v1",
		PrettyName:  "Bollinger Bands Strategy",
		Description: "Buys when price is low and sells when price is high based on Bollinger Bands.",
		Parameters: []Parameter{
			{Name: "candles_connector", Type: TypeString, Prompt: "Enter the candles connector: "},
			{Name: "candles_trading_pair", Type: TypeString, Prompt: "Enter the candles trading pair: "},
			{Name: "interval", Type: TypeString, Prompt: "Enter the candle interval (e.g., 1m, 5m, 1h, 1d): ", Default: "3m",
				ValidValues: []string{"1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d"}},
			{Name: "bb_length", Type: TypeInt, Prompt: "Enter the Bollinger Bands length: ", Default: 100, Required: true, MinValue: ptr(2)},
			{Name: "bb_std", Type: TypeFloat, Prompt: "Enter the Bollinger Bands standard deviation: ", Default: 2.0, MinValue: ptr(0)},
			{Name: "bb_long_threshold", Type: TypeFloat, Prompt: "Enter the Bollinger Bands long threshold: ", Default: 0.0, Required: true},
			{Name: "bb_short_threshold", Type: TypeFloat, Prompt: "Enter the Bollinger Bands short threshold: ", Default: 1.0, Required: true},
			{Name: "stop_loss", Type: TypeFloat, Prompt: "Enter the stop loss (as a decimal, e.g. 0.03): ", Default: 0.03, MinValue: ptr(0), MaxValue: ptr(1)},
			{Name: "take_profit", Type: TypeFloat, Prompt: "Enter the take profit (as a decimal, e.g. 0.02): ", Default: 0.02, MinValue: ptr(0), MaxValue: ptr(1)},
			{Name: "time_limit", Type: TypeInt, Prompt: "Enter the time limit in seconds: ", Default: 2700, MinValue: ptr(0)},
			{Name: "leverage", Type: TypeInt, Prompt: "Enter the leverage: ", Default: 20, IsAdvanced: true, MinValue: ptr(1)},
		},
	})

	Register(Definition{
		Name:        "spot_perp_arbitrage",
		PrettyName:  "Spot-Futures Arbitrage",
		Description: "Profits from price differences between spot and futures markets.",
		Parameters: []Parameter{
			{Name: "spot_connector", Type: TypeString, Prompt: "Enter the spot connector: ", Default: "binance", Required: true, IsAdvanced: true},
			{Name: "spot_trading_pair", Type: TypeString, Prompt: "Enter the spot trading pair: ", Default: "DOGE-USDC", Required: true, IsAdvanced: true},
			{Name: "perp_connector", Type: TypeString, Prompt: "Enter the perp connector: ", Default: "binance_perpetual", Required: true, IsAdvanced: true},
			{Name: "perp_trading_pair", Type: TypeString, Prompt: "Enter the perp trading pair: ", Default: "DOGE-USDC", Required: true, IsAdvanced: true},
			{Name: "profitability", Type: TypeFloat, Prompt: "Enter the minimum profitability: ", Default: 0.002, Required: true, MinValue: ptr(0)},
			{Name: "position_size_quote", Type: TypeFloat, Prompt: "Enter the position size in quote currency: ", Default: 50.0, Required: true, MinValue: ptr(0)},
		},
	})

	Register(Definition{
		Name:        "pmm_simple",
		PrettyName:  "Simple Market Maker",
		Description: "Places basic buy and sell orders with fixed spreads.",
		Parameters: []Parameter{
			{Name: "connector_name", Type: TypeString, Prompt: "Enter the connector: ", Default: "paper_trade", Required: true},
			{Name: "trading_pair", Type: TypeString, Prompt: "Enter the trading pair: ", Default: "SOL-USDC", Required: true},
			{Name: "total_amount_quote", Type: TypeFloat, Prompt: "Enter the total amount in quote asset: ", Default: 100.0, Required: true, MinValue: ptr(0)},
			{Name: "buy_spreads", Type: TypeString, Prompt: "Enter comma-separated buy spreads: ", Default: "0.01,0.02"},
			{Name: "sell_spreads", Type: TypeString, Prompt: "Enter comma-separated sell spreads: ", Default: "0.01,0.02"},
			{Name: "executor_refresh_time", Type: TypeInt, Prompt: "Enter the refresh time in seconds: ", Default: 300, IsAdvanced: true, MinValue: ptr(1)},
		},
	})
}
