package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	var indicator string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run one aggregation pass and print the snapshot",
		Long: `Run one aggregation pass against the configured upstreams and print the
resulting snapshot as JSON. Enabled sinks (ClickHouse, Kafka) receive it too.

Examples:
  macroctl snapshot
  macroctl snapshot --indicator repo_rate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := root.tooling()
			if err != nil {
				return err
			}
			defer tools.Close()

			snap := tools.Service.Refresh(cmd.Context())
			if indicator == "" {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			v, ok := snap.Values[indicator]
			if !ok {
				return fmt.Errorf("unknown indicator %q", indicator)
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVar(&indicator, "indicator", "", "print only this indicator")
	return cmd
}
