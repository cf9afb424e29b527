package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		indicator string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored observations from ClickHouse",
		Long: `Print persisted observations, newest first. Requires clickhouse.enabled
(or CLICKHOUSE_HOST).

Examples:
  macroctl history --indicator repo_rate --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := root.tooling()
			if err != nil {
				return err
			}
			defer tools.Close()

			if tools.History == nil {
				return errors.New("clickhouse is not configured or unreachable")
			}
			rows, err := tools.History.History(cmd.Context(), indicator, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&indicator, "indicator", "", "only this indicator (default: all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}
