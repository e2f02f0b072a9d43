// Package runner orchestrates a validation run: it lowers a suite to its
// unique analyzers, pre-flights the schema, plans and executes queries
// concurrently under the scoped validation context, merges partition states,
// materializes the metric snapshot, and applies the verdict engine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/anomaly"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/sink"
	"github.com/tidewater-io/datavet/pkg/statestore"
	"github.com/tidewater-io/datavet/pkg/suite"
	"github.com/tidewater-io/datavet/pkg/validate"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// tracerName identifies runner spans.
const tracerName = "github.com/tidewater-io/datavet/pkg/runner"

// Options configures a validation run. The zero value is not valid; start
// from DefaultOptions.
type Options struct {
	// OptimizerEnabled groups shareable aggregates into one physical query.
	OptimizerEnabled bool

	// Parallelism bounds in-flight analyzers. Defaults to GOMAXPROCS.
	Parallelism int

	// Deadline bounds the whole run; zero means none. Expiry surfaces as
	// per-analyzer timeouts which the verdict engine converts to Skipped.
	Deadline time.Duration

	// Store, when set with PartitionID, merges this run's states with
	// persisted partition states before materializing metrics.
	Store statestore.Store

	// PartitionID names the partition this run covers.
	PartitionID string

	// Sink, when set, receives every materialized metric record.
	Sink sink.Sink

	// AnomalyConfig, when set, feeds numeric metrics through anomaly
	// detection after the verdict.
	AnomalyConfig *anomaly.Config
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		OptimizerEnabled: true,
		Parallelism:      runtime.GOMAXPROCS(0),
	}
}

// validate rejects inconsistent options at configuration time.
func (o Options) validate() error {
	if o.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be at least 1", verrors.ErrInvalidConfiguration)
	}

	if o.PartitionID != "" && o.Store == nil {
		return fmt.Errorf("%w: partition id set without a state store", verrors.ErrInvalidConfiguration)
	}

	if o.Store != nil && o.PartitionID == "" {
		return fmt.Errorf("%w: state store set without a partition id", verrors.ErrInvalidConfiguration)
	}

	if o.Deadline < 0 {
		return fmt.Errorf("%w: negative deadline", verrors.ErrInvalidConfiguration)
	}

	return nil
}

// Diagnostic is one run-level note about a non-fatal problem.
type Diagnostic struct {
	MetricKey string
	Stage     string
	Err       error
}

// Result bundles everything a run produces.
type Result struct {
	Report      *suite.Report
	Metrics     *analyzer.Repository
	Records     []metric.Record
	Anomalies   []anomaly.Anomaly
	Diagnostics []Diagnostic
}

// Runner executes validation suites against one query context.
type Runner struct {
	qc     query.Context
	opts   Options
	stats  *StatsCache
	tracer trace.Tracer
}

// New creates a runner after validating the options.
func New(qc query.Context, opts Options) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &Runner{
		qc:     qc,
		opts:   opts,
		stats:  NewStatsCache(),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Stats exposes the optimizer's shared statistics cache.
func (r *Runner) Stats() *StatsCache {
	return r.stats
}

// Run executes the suite against the table bound in vc.
//
// Cancellation of ctx aborts the run without a report. A run deadline, in
// contrast, surfaces as per-analyzer timeouts: dependent constraints are
// skipped and the run still reports.
func (r *Runner) Run(ctx context.Context, s *suite.Suite, vc *validate.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, verrors.FromContext(err)
	}

	runCtx := validate.Into(ctx, vc)

	var cancel context.CancelFunc
	if r.opts.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, r.opts.Deadline)
		defer cancel()
	}

	runCtx, span := r.tracer.Start(runCtx, "suite.run", trace.WithAttributes(
		attribute.String("suite", s.Name()),
		attribute.String("table", vc.TableName()),
		attribute.String("run_id", vc.RunID()),
	))
	defer span.End()

	// Gather unique analyzers in suite order.
	order, analyzers := gather(s)

	slog.Debug("validation run starting",
		"suite", s.Name(), "table", vc.TableName(), "analyzers", len(order))

	// Schema pre-flight: a missing table is fatal, a missing column elides
	// only the dependent analyzers.
	outcomeErrs, elided, err := r.preflight(runCtx, vc.TableName(), order, analyzers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, verrors.FromContext(ctxErr)
		}

		return nil, err
	}

	executable := make([]analyzer.Fingerprint, 0, len(order))
	for _, fp := range order {
		if !elided[fp] {
			executable = append(executable, fp)
		}
	}

	// Plan and execute.
	var rowCountHint *float64
	if cached, ok := r.stats.Get("rowcount:" + vc.TableName()); ok {
		rowCountHint = &cached
	}

	optimize := r.opts.OptimizerEnabled && s.OptimizerEnabled()
	units := plan(executable, analyzers, optimize, rowCountHint)
	results := r.execute(runCtx, units)

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("%w: suite %s", verrors.ErrCancelled, s.Name())
	}

	var diagnostics []Diagnostic

	// Merge with persisted partition states.
	if r.opts.Store != nil {
		r.mergeWithHistory(ctx, analyzers, results, &diagnostics)
	}

	// Materialize metrics.
	timestamp := time.Now().UTC()
	repo := analyzer.NewRepository(timestamp)
	records := make([]metric.Record, 0, len(order))

	for _, fp := range order {
		a := analyzers[fp]

		if elidedErr, wasElided := outcomeErrs[fp]; wasElided {
			repo.Put(fp, analyzer.Outcome{Err: elidedErr})

			continue
		}

		result := results[fp]
		if result.err != nil {
			repo.Put(fp, analyzer.Outcome{Err: result.err})
			diagnostics = append(diagnostics, Diagnostic{
				MetricKey: a.MetricKey(), Stage: "compute", Err: result.err,
			})

			continue
		}

		value, metricErr := a.Metric(result.state)
		if metricErr == nil && value.IsNull() {
			// A null metric without an error means NaN leaked out of an
			// analyzer; treat it as absent data.
			metricErr = verrors.ErrNoData
		}

		repo.Put(fp, analyzer.Outcome{Value: value, Err: metricErr})

		if metricErr != nil {
			continue
		}

		records = append(records, metric.Record{
			Key:       a.MetricKey(),
			Value:     value,
			Entity:    a.Entity(),
			Timestamp: timestamp,
			Tags:      r.recordTags(s, vc),
		})

		if numeric, ok := value.AsDouble(); ok {
			r.stats.Set(vc.TableName()+"."+a.MetricKey(), numeric)

			if a.MetricKey() == "size" {
				r.stats.Set("rowcount:"+vc.TableName(), numeric)
			}
		}
	}

	// Verdict.
	report := suite.Evaluate(s, repo)

	// Emit.
	r.emit(records, &diagnostics)

	// Anomaly detection over the fresh numeric metrics.
	anomalies := r.detectAnomalies(ctx, records, &diagnostics)

	slog.Debug("validation run finished",
		"suite", s.Name(), "table", vc.TableName(),
		"passed", report.Totals.Passed, "failed", report.Totals.Failed,
		"skipped", report.Totals.Skipped)

	return &Result{
		Report:      report,
		Metrics:     repo,
		Records:     records,
		Anomalies:   anomalies,
		Diagnostics: diagnostics,
	}, nil
}

// gather walks the suite and deduplicates analyzers by fingerprint,
// preserving first-reference order.
func gather(s *suite.Suite) ([]analyzer.Fingerprint, map[analyzer.Fingerprint]analyzer.Analyzer) {
	var order []analyzer.Fingerprint

	analyzers := map[analyzer.Fingerprint]analyzer.Analyzer{}

	for _, check := range s.Checks() {
		for _, constraint := range check.Constraints() {
			for _, a := range constraint.Analyzers() {
				fp := a.Descriptor().Fingerprint()
				if _, seen := analyzers[fp]; seen {
					continue
				}

				analyzers[fp] = a
				order = append(order, fp)
			}
		}
	}

	return order, analyzers
}

// preflight verifies referenced columns against the table schema. The
// returned map carries the schema-mismatch outcome for elided analyzers.
func (r *Runner) preflight(ctx context.Context, table string, order []analyzer.Fingerprint, analyzers map[analyzer.Fingerprint]analyzer.Analyzer) (map[analyzer.Fingerprint]error, map[analyzer.Fingerprint]bool, error) {
	fields, err := r.qc.Schema(ctx, table)
	if err != nil {
		return nil, nil, fmt.Errorf("schema pre-flight for table %q: %w", table, err)
	}

	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f.Name] = true
	}

	outcomes := map[analyzer.Fingerprint]error{}
	elided := map[analyzer.Fingerprint]bool{}

	for _, fp := range order {
		for _, col := range analyzers[fp].Descriptor().Columns {
			if !present[col] {
				outcomes[fp] = fmt.Errorf("%w: column %q missing from table %q",
					verrors.ErrSchemaMismatch, col, table)
				elided[fp] = true

				break
			}
		}
	}

	return outcomes, elided, nil
}

// execute fans execution units out over the parallelism budget. Each unit
// writes only its own fingerprints into the shared result map.
func (r *Runner) execute(ctx context.Context, units []executionUnit) map[analyzer.Fingerprint]unitResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = map[analyzer.Fingerprint]unitResult{}
	)

	sem := make(chan struct{}, r.opts.Parallelism)

	for _, unit := range units {
		wg.Add(1)

		go func(u executionUnit) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				err := verrors.FromContext(ctx.Err())

				mu.Lock()
				for _, fp := range u.fingerprints() {
					results[fp] = unitResult{err: err}
				}
				mu.Unlock()

				return
			}

			unitCtx, span := r.tracer.Start(ctx, "analyzer.compute", trace.WithAttributes(
				attribute.Int("fingerprints", len(u.fingerprints())),
			))

			unitResults := u.run(unitCtx, r.qc)

			span.End()

			mu.Lock()
			for fp, result := range unitResults {
				results[fp] = result
			}
			mu.Unlock()
		}(unit)
	}

	wg.Wait()

	return results
}

// mergeWithHistory persists each fresh state and replaces it with the merge
// across all stored partitions. Store failures degrade to diagnostics; the
// fresh state still serves the current run.
func (r *Runner) mergeWithHistory(ctx context.Context, analyzers map[analyzer.Fingerprint]analyzer.Analyzer, results map[analyzer.Fingerprint]unitResult, diagnostics *[]Diagnostic) {
	for fp, result := range results {
		if result.err != nil || result.state == nil {
			continue
		}

		a := analyzers[fp]

		err := r.opts.Store.Put(ctx, fp, r.opts.PartitionID, a, result.state)
		if err != nil {
			*diagnostics = append(*diagnostics, Diagnostic{
				MetricKey: a.MetricKey(), Stage: "state-store-put", Err: err,
			})

			continue
		}

		merged, ok, err := r.opts.Store.MergeAll(ctx, fp, a)
		if err != nil {
			*diagnostics = append(*diagnostics, Diagnostic{
				MetricKey: a.MetricKey(), Stage: "state-store-merge", Err: err,
			})

			continue
		}

		if ok {
			results[fp] = unitResult{state: merged}
		}
	}
}

// recordTags builds the per-record tag set.
func (r *Runner) recordTags(s *suite.Suite, vc *validate.Context) map[string]string {
	tags := map[string]string{
		"suite":  s.Name(),
		"table":  vc.TableName(),
		"run_id": vc.RunID(),
	}

	if r.opts.PartitionID != "" {
		tags["partition"] = r.opts.PartitionID
	}

	return tags
}

// emit pushes records through the configured sink.
func (r *Runner) emit(records []metric.Record, diagnostics *[]Diagnostic) {
	if r.opts.Sink == nil {
		return
	}

	for _, record := range records {
		err := r.opts.Sink.Send(record)
		if err != nil {
			*diagnostics = append(*diagnostics, Diagnostic{
				MetricKey: record.Key, Stage: "sink", Err: err,
			})
		}
	}

	err := r.opts.Sink.Flush()
	if err != nil {
		*diagnostics = append(*diagnostics, Diagnostic{Stage: "sink-flush", Err: err})
	}
}

// detectAnomalies runs configured strategies over the fresh numeric metrics.
func (r *Runner) detectAnomalies(ctx context.Context, records []metric.Record, diagnostics *[]Diagnostic) []anomaly.Anomaly {
	if r.opts.AnomalyConfig == nil {
		return nil
	}

	points := make([]anomaly.MetricDataPoint, 0, len(records))

	for _, record := range records {
		value, ok := record.Value.AsDouble()
		if !ok {
			continue
		}

		points = append(points, anomaly.MetricDataPoint{
			Key:       record.Key,
			Value:     value,
			Timestamp: record.Timestamp,
		})
	}

	anomalies, err := anomaly.NewDetector(r.opts.AnomalyConfig).Detect(ctx, points)
	if err != nil {
		*diagnostics = append(*diagnostics, Diagnostic{Stage: "anomaly", Err: err})

		return nil
	}

	return anomalies
}
