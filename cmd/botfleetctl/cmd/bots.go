package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var botsCmd = &cobra.Command{
	Use:     "bots",
	Aliases: []string{"bot"},
	Short:   "Create and drive trading bots",
	Long: `Create and drive trading bots.

Examples:
  botfleetctl bots create --owner alice --strategy bollinger_v1 --market SOL-USDC
  botfleetctl bots start hummingbot-robotter_alice_SOL-USDC_bollinger_v1 -p bb_std=3.0
  botfleetctl bots status hummingbot-robotter_alice_SOL-USDC_bollinger_v1`,
}

var botsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision an account, wallet and worker for a new bot",
	Args:  cobra.NoArgs,
	RunE:  runBotsCreate,
}

var botsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked bots and their status",
	Args:  cobra.NoArgs,
	RunE:  runBotsList,
}

var botsStatusCmd = &cobra.Command{
	Use:   "status <bot-id>",
	Short: "Show performance and logs of a bot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsStatus,
}

var botsStartCmd = &cobra.Command{
	Use:   "start <bot-id>",
	Short: "Start a bot with its stored configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsStart,
}

var botsStopCmd = &cobra.Command{
	Use:   "stop <bot-id>",
	Short: "Stop a bot and cancel its open orders",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsStop,
}

var botsHistoryCmd = &cobra.Command{
	Use:   "history <bot-id>",
	Short: "Show the trade history of a bot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsHistory,
}

var botsRemoveCmd = &cobra.Command{
	Use:   "remove <bot-id>",
	Short: "Remove a bot worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsRemove,
}

var (
	createOwner    string
	createStrategy string
	createMarket   string
	botParams      []string
	removeArchive  bool
)

func init() {
	rootCmd.AddCommand(botsCmd)
	botsCmd.AddCommand(botsCreateCmd)
	botsCmd.AddCommand(botsListCmd)
	botsCmd.AddCommand(botsStatusCmd)
	botsCmd.AddCommand(botsStartCmd)
	botsCmd.AddCommand(botsStopCmd)
	botsCmd.AddCommand(botsHistoryCmd)
	botsCmd.AddCommand(botsRemoveCmd)

	botsCreateCmd.Flags().StringVar(&createOwner, "owner", "", "bot owner")
	botsCreateCmd.Flags().StringVar(&createStrategy, "strategy", "", "strategy name")
	botsCreateCmd.Flags().StringVar(&createMarket, "market", "", "trading pair, e.g. SOL-USDC")
	botsCreateCmd.Flags().StringArrayVarP(&botParams, "param", "p", nil, "strategy parameter key=value (repeatable)")
	_ = botsCreateCmd.MarkFlagRequired("owner")
	_ = botsCreateCmd.MarkFlagRequired("strategy")
	_ = botsCreateCmd.MarkFlagRequired("market")

	botsStartCmd.Flags().StringArrayVarP(&botParams, "param", "p", nil, "parameter override key=value (repeatable)")
	botsRemoveCmd.Flags().BoolVar(&removeArchive, "archive", true, "archive the instance directory before removing it")
}

func runBotsCreate(cmd *cobra.Command, args []string) error {
	params, err := parseParams(botParams)
	if err != nil {
		return err
	}
	req := model.CreateBotRequest{
		Owner:              createOwner,
		StrategyName:       createStrategy,
		StrategyParameters: params,
		Market:             createMarket,
	}
	var resp model.CreateBotResponse
	if err := newClient().Post(cmd.Context(), "/bots", req, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Instance", "Wallet", "Market")
	table.Append(resp.InstanceID, resp.WalletAddress, resp.Market)
	return table.Render()
}

func runBotsList(cmd *cobra.Command, args []string) error {
	var statuses map[string]model.BotStatus
	if err := newClient().Get(cmd.Context(), "/bots", nil, &statuses); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), statuses)
	}
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Bot", "Status", "Controllers", "Errors")
	for _, id := range ids {
		st := statuses[id]
		table.Append(id, st.Status, strconv.Itoa(len(st.Performance)), strconv.Itoa(len(st.ErrorLogs)))
	}
	return table.Render()
}

func runBotsStatus(cmd *cobra.Command, args []string) error {
	var st model.BotStatus
	if err := newClient().Get(cmd.Context(), "/bots/"+args[0]+"/status", nil, &st); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", args[0], st.Status)

	names := make([]string, 0, len(st.Performance))
	for name := range st.Performance {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(out)
	table.Header("Controller", "Status", "PnL", "Trades", "Win rate", "Max DD", "Error")
	for _, name := range names {
		cs := st.Performance[name]
		row := []string{name, cs.Status, "", "", "", "", cs.Error}
		if p := cs.Performance; p != nil {
			row[2] = p.TotalPnl.String()
			row[3] = strconv.FormatInt(p.TotalTrades, 10)
			row[4] = strconv.FormatFloat(p.WinRate, 'f', 4, 64)
			row[5] = strconv.FormatFloat(p.MaxDrawdown, 'f', 4, 64)
		}
		table.Append(row)
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, entry := range st.ErrorLogs {
		fmt.Fprintf(out, "[%s] %s\n", entry.LevelName, entry.Message)
	}
	return nil
}

func runBotsStart(cmd *cobra.Command, args []string) error {
	params, err := parseParams(botParams)
	if err != nil {
		return err
	}
	var body any
	if len(params) > 0 {
		body = model.StartBotRequest{Parameters: params}
	}
	var resp model.CommandResponse
	if err := newClient().Post(cmd.Context(), "/bots/"+args[0]+"/start", body, &resp); err != nil {
		return err
	}
	return printCommand(cmd, "start", args[0], resp)
}

func runBotsStop(cmd *cobra.Command, args []string) error {
	var resp model.CommandResponse
	if err := newClient().Post(cmd.Context(), "/bots/"+args[0]+"/stop", nil, &resp); err != nil {
		return err
	}
	return printCommand(cmd, "stop", args[0], resp)
}

func runBotsHistory(cmd *cobra.Command, args []string) error {
	var trades []model.TradeLog
	if err := newClient().Get(cmd.Context(), "/bots/"+args[0]+"/history", nil, &trades); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), trades)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Time", "Pair", "Side", "Price", "Amount")
	for _, t := range trades {
		table.Append(strconv.FormatInt(t.Timestamp, 10), t.TradingPair, t.Side, t.Price.String(), t.Amount.String())
	}
	return table.Render()
}

func runBotsRemove(cmd *cobra.Command, args []string) error {
	query := url.Values{"archive": {strconv.FormatBool(removeArchive)}}
	var resp map[string]string
	if err := newClient().Delete(cmd.Context(), "/bots/"+args[0], query, &resp); err != nil {
		return err
	}
	if resp["archive"] != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "bot %s removed, archived to %s\n", args[0], resp["archive"])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bot %s removed\n", args[0])
	return nil
}

func printCommand(cmd *cobra.Command, action, id string, resp model.CommandResponse) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if !resp.Success {
		return fmt.Errorf("%s %s failed: %s", action, id, resp.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok %s\n", action, id, resp.Message)
	return nil
}

// parseParams decodes key=value pairs, reading values as JSON when they parse ("3.0", "true", "[1,2]").
func parseParams(pairs []string) (map[string]any, error) {
	raw, err := parseKeyValues(pairs)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for key, value := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
			continue
		}
		params[key] = value
	}
	return params, nil
}
