package cmd

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/strategy"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List running worker containers",
	Args:  cobra.NoArgs,
	RunE:  runWorkers,
}

var stateCmd = &cobra.Command{
	Use:   "state [account]",
	Short: "Show aggregated balances per account and connector",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runState,
}

var stateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show total value per snapshot from the state history",
	Args:  cobra.NoArgs,
	RunE:  runStateHistory,
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies and their parameters",
	Args:  cobra.NoArgs,
	RunE:  runStrategies,
}

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List connector names the server can initialize",
	Args:  cobra.NoArgs,
	RunE:  runConnectors,
}

var (
	historyLimit int
	historyFrom  string
	historyTo    string
)

func init() {
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateHistoryCmd)
	rootCmd.AddCommand(strategiesCmd)
	rootCmd.AddCommand(connectorsCmd)

	stateHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "max snapshots")
	stateHistoryCmd.Flags().StringVar(&historyFrom, "from", "", "start time (RFC3339, unix seconds or a duration like 6h)")
	stateHistoryCmd.Flags().StringVar(&historyTo, "to", "", "end time (RFC3339, unix seconds or a duration like 1h)")
}

func runWorkers(cmd *cobra.Command, args []string) error {
	var names []string
	if err := newClient().Get(cmd.Context(), "/workers", nil, &names); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), names)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("#", "Worker")
	for i, name := range names {
		table.Append(strconv.Itoa(i+1), name)
	}
	return table.Render()
}

func runState(cmd *cobra.Command, args []string) error {
	var state model.AccountsState
	if err := newClient().Get(cmd.Context(), "/state", nil, &state); err != nil {
		return err
	}
	if len(args) == 1 {
		accountState, ok := state[args[0]]
		if !ok {
			return fmt.Errorf("account %s has no state", args[0])
		}
		state = model.AccountsState{args[0]: accountState}
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), state)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Account", "Connector", "Token", "Units", "Price", "Value", "Available")
	for _, row := range stateRows(state) {
		table.Append(row)
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total value: %s\n", TotalValue(state).StringFixed(2))
	return nil
}

// stateRows flattens the snapshot into sorted table rows.
func stateRows(state model.AccountsState) [][]string {
	rows := make([][]string, 0)
	for _, account := range sortedKeys(state) {
		connectors := state[account]
		for _, name := range sortedKeys(connectors) {
			for _, e := range connectors[name] {
				rows = append(rows, []string{
					account, name, e.Token,
					e.Units.String(), e.Price.String(), e.Value.StringFixed(2), e.AvailableUnits.String(),
				})
			}
		}
	}
	return rows
}

// TotalValue sums every balance entry value in the snapshot.
func TotalValue(state model.AccountsState) decimal.Decimal {
	total := decimal.Zero
	for _, connectors := range state {
		for _, entries := range connectors {
			for _, e := range entries {
				total = total.Add(e.Value)
			}
		}
	}
	return total
}

func runStateHistory(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if historyLimit > 0 {
		query.Set("limit", strconv.Itoa(historyLimit))
	}
	if historyFrom != "" {
		query.Set("from", historyFrom)
	}
	if historyTo != "" {
		query.Set("to", historyTo)
	}
	var records []model.HistoryRecord
	if err := newClient().Get(cmd.Context(), "/state/history", query, &records); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), records)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Timestamp", "Accounts", "Total value")
	for _, rec := range records {
		table.Append(rec.Timestamp.Format("2006-01-02 15:04:05"), strconv.Itoa(len(rec.State)), TotalValue(rec.State).StringFixed(2))
	}
	return table.Render()
}

func runStrategies(cmd *cobra.Command, args []string) error {
	var defs []strategy.Definition
	if err := newClient().Get(cmd.Context(), "/strategies", nil, &defs); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), defs)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Strategy", "Parameter", "Type", "Default", "Required")
	for _, def := range defs {
		for _, p := range def.Parameters {
			table.Append(def.Name, p.Name, string(p.Type), fmt.Sprint(p.Default), strconv.FormatBool(p.Required))
		}
	}
	return table.Render()
}

func runConnectors(cmd *cobra.Command, args []string) error {
	var names []string
	if err := newClient().Get(cmd.Context(), "/connectors", nil, &names); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), names)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
