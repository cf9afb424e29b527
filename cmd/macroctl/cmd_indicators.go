package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MacroPull/internal/domain/models"
)

func newIndicatorsCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "List configured indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := root.tooling()
			if err != nil {
				return err
			}
			defer tools.Close()

			specs := tools.Registry.Specs()
			infos := make([]models.IndicatorInfo, 0, len(specs))
			for _, s := range specs {
				infos = append(infos, models.Describe(s))
			}

			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), infos)
			case "table":
				return writeIndicatorTable(cmd, infos)
			default:
				return fmt.Errorf("unsupported format %q (table|json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table|json)")
	return cmd
}

func writeIndicatorTable(cmd *cobra.Command, infos []models.IndicatorInfo) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tRANGE\tFALLBACK\tTTL\tRATE LIMITED")
	for _, i := range infos {
		fallback := "-"
		if i.Fallback != nil {
			fallback = fmt.Sprintf("%g", *i.Fallback)
		}
		fmt.Fprintf(tw, "%s\t%s\t[%g, %g]\t%s\t%ds\t%t\n",
			i.Name, i.Source, i.Min, i.Max, fallback, i.TTLSeconds, i.RateLimited)
	}
	return tw.Flush()
}
