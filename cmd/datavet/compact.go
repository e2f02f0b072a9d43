package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidewater-io/datavet/pkg/config"
	"github.com/tidewater-io/datavet/pkg/statestore"
)

// newCompactCommand builds the `datavet compact` command: fold every stored
// partition state of the configured suite into a single generation.
func newCompactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the incremental state store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}

			setupLogging(cfg.Logging.Level, cfg.Logging.Format)

			if cfg.StateDir == "" {
				return fmt.Errorf("compact requires state_dir in the configuration")
			}

			s, err := config.LoadSuite(cfg.SuiteFile)
			if err != nil {
				return err
			}

			store, err := statestore.NewFSStore(cfg.StateDir)
			if err != nil {
				return err
			}

			var compacted int

			for _, check := range s.Checks() {
				for _, constraint := range check.Constraints() {
					for _, a := range constraint.Analyzers() {
						fp := a.Descriptor().Fingerprint()

						compactErr := store.Compact(cmd.Context(), fp, a)
						if compactErr != nil {
							return fmt.Errorf("compact %s: %w", a.MetricKey(), compactErr)
						}

						compacted++
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "compacted state for %d analyzers\n", compacted)

			return nil
		},
	}
}
