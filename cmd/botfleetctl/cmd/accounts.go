package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account", "acc"},
	Short:   "Manage accounts, credentials and wallets",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <account>",
	Short: "Create an account from the master template",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsAdd,
}

var accountsDeleteCmd = &cobra.Command{
	Use:   "delete <account>",
	Short: "Delete an account and its credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsDelete,
}

var accountsCredsCmd = &cobra.Command{
	Use:   "credentials <account>",
	Short: "List connectors with stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsCreds,
}

var accountsAddCredCmd = &cobra.Command{
	Use:   "add-credential <account> <connector> [key=value...]",
	Short: "Store connector keys and initialize the connector",
	Long: `Store connector keys and initialize the connector.

Examples:
  botfleetctl accounts add-credential acct1 binance api_key=xxx api_secret=yyy
  botfleetctl accounts add-credential acct1 paper_trade`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAccountsAddCred,
}

var accountsDelCredCmd = &cobra.Command{
	Use:   "delete-credential <account> <connector>",
	Short: "Remove a connector credential",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsDelCred,
}

var accountsWalletCmd = &cobra.Command{
	Use:   "wallet <account>",
	Short: "Show the account wallet address",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsWallet,
}

var generateWallet bool

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsDeleteCmd)
	accountsCmd.AddCommand(accountsCredsCmd)
	accountsCmd.AddCommand(accountsAddCredCmd)
	accountsCmd.AddCommand(accountsDelCredCmd)
	accountsCmd.AddCommand(accountsWalletCmd)

	accountsWalletCmd.Flags().BoolVar(&generateWallet, "generate", false, "generate a new wallet when the account has none")
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	var accounts []string
	if err := newClient().Get(cmd.Context(), "/accounts", nil, &accounts); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), accounts)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("#", "Account")
	for i, name := range accounts {
		table.Append(fmt.Sprint(i+1), name)
	}
	return table.Render()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	var resp map[string]string
	if err := newClient().Post(cmd.Context(), "/accounts", map[string]string{"account_name": args[0]}, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %s created\n", resp["account_name"])
	return nil
}

func runAccountsDelete(cmd *cobra.Command, args []string) error {
	if err := newClient().Delete(cmd.Context(), "/accounts/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %s deleted\n", args[0])
	return nil
}

func runAccountsCreds(cmd *cobra.Command, args []string) error {
	var names []string
	if err := newClient().Get(cmd.Context(), "/accounts/"+args[0]+"/credentials", nil, &names); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), names)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Connector")
	for _, name := range names {
		table.Append(name)
	}
	return table.Render()
}

func runAccountsAddCred(cmd *cobra.Command, args []string) error {
	keys, err := parseKeyValues(args[2:])
	if err != nil {
		return err
	}
	path := "/accounts/" + args[0] + "/credentials/" + args[1]
	if err := newClient().Post(cmd.Context(), path, keys, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connector %s added to %s\n", args[1], args[0])
	return nil
}

func runAccountsDelCred(cmd *cobra.Command, args []string) error {
	path := "/accounts/" + args[0] + "/credentials/" + args[1]
	if err := newClient().Delete(cmd.Context(), path, nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connector %s removed from %s\n", args[1], args[0])
	return nil
}

func runAccountsWallet(cmd *cobra.Command, args []string) error {
	var resp map[string]string
	path := "/accounts/" + args[0] + "/wallet"
	var err error
	if generateWallet {
		err = newClient().Post(cmd.Context(), path, nil, &resp)
	} else {
		err = newClient().Get(cmd.Context(), path, nil, &resp)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp["wallet_address"])
	return nil
}

// parseKeyValues turns ["a=1", "b=2"] into a map. Values may contain '='.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}
