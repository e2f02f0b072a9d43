// Package profile builds per-column statistical profiles by driving the
// analyzer framework directly. Profiles feed the suggestion engine; no
// constraints are executed here.
package profile

import (
	"context"
	"errors"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/suite"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// ColumnProfile summarizes one column of the bound table.
type ColumnProfile struct {
	Column         string
	DataType       string
	RowCount       int64
	NullCount      int64
	Completeness   float64
	ApproxDistinct int64
	Distinctness   float64
	Min            *float64
	Max            *float64
	Mean           *float64
	StdDev         *float64

	// PatternMatches maps well-known format names to the fraction of
	// non-null values matching them. Filled for text columns only.
	PatternMatches map[string]float64
}

// Profiler computes column profiles against a query context.
type Profiler struct {
	qc query.Context
}

// NewProfiler creates a profiler over the query context.
func NewProfiler(qc query.Context) *Profiler {
	return &Profiler{qc: qc}
}

// ProfileColumn computes the profile of one column. ctx must carry the
// validation context binding the table.
func (p *Profiler) ProfileColumn(ctx context.Context, column string) (*ColumnProfile, error) {
	out := &ColumnProfile{Column: column}

	completeness := analyzer.NewCompleteness(column)

	state, err := completeness.ComputeState(ctx, p.qc)
	if err != nil {
		return nil, err
	}

	if cs, ok := state.(*analyzer.CompletenessState); ok {
		out.RowCount = cs.Total
		out.NullCount = cs.Total - cs.NonNull

		if ratio, has := cs.Ratio(); has {
			out.Completeness = ratio
		}
	}

	approx := analyzer.NewApproxDistinct(column)

	state, err = approx.ComputeState(ctx, p.qc)
	if err != nil {
		return nil, err
	}

	value, err := approx.Metric(state)
	if err == nil {
		if count, ok := value.AsLong(); ok {
			out.ApproxDistinct = count
		}
	}

	nonNull := out.RowCount - out.NullCount
	if nonNull > 0 {
		out.Distinctness = min(1, float64(out.ApproxDistinct)/float64(nonNull))
	}

	dataType := analyzer.NewDataType(column)

	state, err = dataType.ComputeState(ctx, p.qc)
	if err != nil {
		return nil, err
	}

	if ds, ok := state.(*analyzer.DataTypeState); ok {
		out.DataType = ds.InferredType()
	}

	if out.DataType == analyzer.TypeInteger || out.DataType == analyzer.TypeFloat {
		err = p.numericStats(ctx, column, out)
		if err != nil {
			return nil, err
		}
	}

	if out.DataType == analyzer.TypeString && nonNull > 0 {
		err = p.patternMatches(ctx, column, out)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// profiledFormats are the well-known formats every text column is matched
// against.
var profiledFormats = []suite.Format{
	suite.FormatEmail,
	suite.FormatURL,
	suite.FormatDate,
	suite.FormatUUID,
	suite.FormatIPv4,
	suite.FormatPhoneE164,
}

// patternMatches fills the format match ratios for a text column by running
// a compliance scan per format.
func (p *Profiler) patternMatches(ctx context.Context, column string, out *ColumnProfile) error {
	matches := map[string]float64{}

	for _, format := range profiledFormats {
		pattern, err := format.Pattern()
		if err != nil {
			return err
		}

		compliance, err := analyzer.NewCompliance(column, pattern)
		if err != nil {
			return err
		}

		state, err := compliance.ComputeState(ctx, p.qc)
		if err != nil {
			return err
		}

		value, err := compliance.Metric(state)
		if errors.Is(err, verrors.ErrNoData) {
			continue
		}

		if err != nil {
			return err
		}

		if ratio, ok := value.AsDouble(); ok && ratio > 0 {
			matches[format.String()] = ratio
		}
	}

	if len(matches) > 0 {
		out.PatternMatches = matches
	}

	return nil
}

// numericStats fills min/max/mean/stddev for numeric columns.
func (p *Profiler) numericStats(ctx context.Context, column string, out *ColumnProfile) error {
	type numericMetric struct {
		a    analyzer.Analyzer
		dest **float64
	}

	var minDest, maxDest, meanDest, stddevDest *float64

	metrics := []numericMetric{
		{analyzer.NewMinimum(column), &minDest},
		{analyzer.NewMaximum(column), &maxDest},
		{analyzer.NewMean(column), &meanDest},
		{analyzer.NewStdDev(column), &stddevDest},
	}

	for _, m := range metrics {
		state, err := m.a.ComputeState(ctx, p.qc)
		if err != nil {
			return err
		}

		value, err := m.a.Metric(state)
		if errors.Is(err, verrors.ErrNoData) {
			continue
		}

		if err != nil {
			return err
		}

		if numeric, ok := value.AsDouble(); ok {
			v := numeric
			*m.dest = &v
		}
	}

	out.Min = minDest
	out.Max = maxDest
	out.Mean = meanDest
	out.StdDev = stddevDest

	return nil
}
