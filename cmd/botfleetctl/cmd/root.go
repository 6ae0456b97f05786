package cmd

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	adminKey   string
	jsonOutput bool
	verbose    bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "botfleetctl",
	Short: "Operate a botfleet server from the terminal",
	Long: `botfleetctl talks to the botfleet HTTP API.

It covers:
  - accounts, connector credentials and wallets
  - bot creation and lifecycle
  - live workers and aggregated balances

The server address and admin key default to BOTFLEET_URL and BOTFLEET_ADMIN_KEY.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger.InitWithWriter(level, cmd.ErrOrStderr())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("BOTFLEET_URL", "http://localhost:8000"), "botfleet server base URL")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("BOTFLEET_ADMIN_KEY"), "value sent as X-Admin-Key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *Client {
	return NewClient(serverURL, adminKey, timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
