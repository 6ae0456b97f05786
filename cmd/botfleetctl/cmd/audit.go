package cmd

import (
	"net/url"
	"strconv"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent operator API calls, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

var (
	auditPath    string
	auditAccount string
	auditFrom    string
	auditLimit   int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&auditPath, "path", "", "only calls under this path prefix, e.g. /v1/bots")
	auditCmd.Flags().StringVar(&auditAccount, "account", "", "only calls that touched this account")
	auditCmd.Flags().StringVar(&auditFrom, "from", "24h", "start time (RFC3339, unix seconds or a duration)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "max entries")
}

func runAudit(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(auditLimit))
	if auditPath != "" {
		q.Set("path", auditPath)
	}
	if auditAccount != "" {
		q.Set("account", auditAccount)
	}
	if auditFrom != "" {
		q.Set("from", auditFrom)
	}

	var entries []model.AuditLog
	if err := newClient().Get(cmd.Context(), "/audit", q, &entries); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Time", "Method", "Path", "Status", "Latency", "Error")
	for _, e := range entries {
		code, _ := e.Context["error_code"].(string)
		table.Append(
			e.CreatedAt.Local().Format(time.DateTime),
			e.Method,
			e.Path,
			strconv.Itoa(e.StatusCode),
			strconv.FormatInt(e.LatencyMs, 10)+"ms",
			code,
		)
	}
	return table.Render()
}
