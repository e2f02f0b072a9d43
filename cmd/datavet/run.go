package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tidewater-io/datavet/pkg/anomaly"
	"github.com/tidewater-io/datavet/pkg/config"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/runner"
	"github.com/tidewater-io/datavet/pkg/sink"
	"github.com/tidewater-io/datavet/pkg/statestore"
	"github.com/tidewater-io/datavet/pkg/suite"
	"github.com/tidewater-io/datavet/pkg/validate"
)

// newRunCommand builds the `datavet run` command.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a validation suite against a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}

			setupLogging(cfg.Logging.Level, cfg.Logging.Format)

			s, err := config.LoadSuite(cfg.SuiteFile)
			if err != nil {
				return err
			}

			qc, err := query.OpenSQLite(cfg.Database)
			if err != nil {
				return err
			}
			defer qc.Close()

			opts, err := buildOptions(cfg)
			if err != nil {
				return err
			}

			r, err := runner.New(qc, opts)
			if err != nil {
				return err
			}

			vc, err := validate.NewContext(cfg.Table)
			if err != nil {
				return err
			}

			start := time.Now()

			result, err := r.Run(cmd.Context(), s, vc)
			if err != nil {
				return err
			}

			renderReport(cmd.OutOrStdout(), result, time.Since(start))

			if !result.Report.IsSuccess() {
				os.Exit(1)
			}

			return nil
		},
	}
}

// buildOptions maps the file configuration onto runner options.
func buildOptions(cfg *config.Config) (runner.Options, error) {
	opts := runner.DefaultOptions()
	opts.OptimizerEnabled = cfg.Optimizer
	opts.Deadline = cfg.Deadline
	opts.Sink = sink.NewSlogSink(nil)

	if cfg.Prometheus {
		promSink, err := sink.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return opts, err
		}

		opts.Sink = sink.NewMulti(opts.Sink, promSink)
	}

	if cfg.Parallelism > 0 {
		opts.Parallelism = cfg.Parallelism
	}

	if cfg.StateDir != "" {
		store, err := statestore.NewFSStore(cfg.StateDir)
		if err != nil {
			return opts, err
		}

		opts.Store = store
		opts.PartitionID = cfg.PartitionID
	}

	if len(cfg.Anomaly) > 0 {
		anomalyCfg, err := buildAnomalyConfig(cfg.Anomaly)
		if err != nil {
			return opts, err
		}

		opts.AnomalyConfig = anomalyCfg
	}

	return opts, nil
}

// buildAnomalyConfig wires configured rules onto an in-memory history.
func buildAnomalyConfig(rules []config.AnomalyRule) (*anomaly.Config, error) {
	cfg, err := anomaly.NewConfig(anomaly.NewMemoryRepository())
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		var strategy anomaly.Strategy

		switch rule.Strategy {
		case "zscore":
			strategy, err = anomaly.NewZScoreWithWindow(rule.Threshold, rule.Window)
		case "relative_rate_of_change":
			strategy, err = anomaly.NewRelativeRateOfChange(rule.Threshold)
		case "absolute_change":
			strategy, err = anomaly.NewAbsoluteChange(rule.Threshold)
		}

		if err != nil {
			return nil, err
		}

		err = cfg.AddPattern(rule.Pattern, strategy)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// statusColor maps statuses to display colors.
func statusColor(status suite.Status) text.Colors {
	switch status {
	case suite.StatusSuccess:
		return text.Colors{text.FgGreen}
	case suite.StatusFailure:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}

// renderReport prints the validation report as a table plus a summary line.
func renderReport(out io.Writer, result *runner.Result, elapsed time.Duration) {
	w := table.NewWriter()
	w.SetOutputMirror(out)
	w.AppendHeader(table.Row{"Check", "Constraint", "Severity", "Status", "Detail"})

	for _, check := range result.Report.Checks {
		for _, cr := range check.ConstraintResults {
			status := statusColor(cr.Status).Sprint(cr.Status.String())
			w.AppendRow(table.Row{check.CheckName, cr.ConstraintName, cr.Severity.String(), status, cr.Message})
		}
	}

	w.Render()

	totals := result.Report.Totals
	fmt.Fprintf(out, "\n%s constraints: %s passed, %s failed, %s skipped in %s\n",
		humanize.Comma(int64(totals.Total)),
		humanize.Comma(int64(totals.Passed)),
		humanize.Comma(int64(totals.Failed)),
		humanize.Comma(int64(totals.Skipped)),
		elapsed.Round(time.Millisecond))

	for _, a := range result.Anomalies {
		fmt.Fprintf(out, "anomaly [%s] %s = %g (expected %.4g..%.4g, confidence %.2f): %s\n",
			a.Strategy, a.MetricKey, a.Value, a.ExpectedLow, a.ExpectedHigh, a.Confidence, a.Description)
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintf(out, "diagnostic [%s] %s: %v\n", d.Stage, d.MetricKey, d.Err)
	}
}
