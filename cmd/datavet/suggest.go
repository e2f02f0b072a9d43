package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tidewater-io/datavet/pkg/config"
	"github.com/tidewater-io/datavet/pkg/profile"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/suggest"
	"github.com/tidewater-io/datavet/pkg/validate"
)

// newSuggestCommand builds the `datavet suggest` command: profile the table
// and print candidate constraints.
func newSuggestCommand() *cobra.Command {
	var columns []string

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Profile a table and suggest constraints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}

			setupLogging(cfg.Logging.Level, cfg.Logging.Format)

			qc, err := query.OpenSQLite(cfg.Database)
			if err != nil {
				return err
			}
			defer qc.Close()

			vc, err := validate.NewContext(cfg.Table)
			if err != nil {
				return err
			}

			ctx := validate.Into(cmd.Context(), vc)

			if len(columns) == 0 {
				fields, schemaErr := qc.Schema(ctx, cfg.Table)
				if schemaErr != nil {
					return schemaErr
				}

				for _, f := range fields {
					columns = append(columns, f.Name)
				}
			}

			profiler := profile.NewProfiler(qc)
			engine := suggest.NewEngine()

			w := table.NewWriter()
			w.SetOutputMirror(cmd.OutOrStdout())
			w.AppendHeader(table.Row{"Column", "Suggestion", "Priority", "Confidence", "Rationale"})

			var total int

			for _, column := range columns {
				p, profileErr := profiler.ProfileColumn(ctx, column)
				if profileErr != nil {
					return profileErr
				}

				for _, s := range engine.Suggest(p) {
					total++

					w.AppendRow(table.Row{
						s.Column, s.CheckKind, s.Priority.String(),
						fmt.Sprintf("%.2f", s.Confidence), s.Rationale,
					})
				}
			}

			w.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d suggestions across %d columns\n", total, len(columns))

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to profile (default: all)")

	return cmd
}
