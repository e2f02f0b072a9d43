package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Inferred type class names, in report order.
const (
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeDate    = "date"
	TypeString  = "string"
	TypeNull    = "null"
)

// typeClassOrder fixes the distribution bucket order.
var typeClassOrder = []string{TypeBoolean, TypeInteger, TypeFloat, TypeDate, TypeString, TypeNull}

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern   = regexp.MustCompile(`^[+-]?(\d+\.\d*|\.\d+|\d+)([eE][+-]?\d+)?$`)
	booleanValues  = map[string]struct{}{
		"true": {}, "false": {}, "yes": {}, "no": {}, "t": {}, "f": {},
	}
)

// dateLayouts are tried in order for date detection.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// DataType infers the value-type distribution of a column by classifying
// each value's textual form.
type DataType struct {
	column string
}

// NewDataType creates a data-type inference analyzer for the column.
func NewDataType(column string) DataType {
	return DataType{column: column}
}

// DataTypeState counts observed values per type class.
type DataTypeState struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// NewDataTypeState returns the merge identity.
func NewDataTypeState() *DataTypeState {
	return &DataTypeState{Counts: map[string]int64{}}
}

// IsEmpty implements State.
func (s *DataTypeState) IsEmpty() bool {
	return s.Total == 0
}

// InferredType returns the type class shared by every non-null value
// (integers mixed with floats read as TypeFloat), TypeNull when all values
// are null, and TypeString otherwise.
func (s *DataTypeState) InferredType() string {
	nonNull := s.Total - s.Counts[TypeNull]
	if nonNull == 0 {
		return TypeNull
	}

	// Integers embedded in an otherwise-float column still read as floats.
	numeric := s.Counts[TypeInteger] + s.Counts[TypeFloat]

	switch {
	case s.Counts[TypeInteger] == nonNull:
		return TypeInteger
	case numeric == nonNull && s.Counts[TypeFloat] > 0:
		return TypeFloat
	case s.Counts[TypeBoolean] == nonNull:
		return TypeBoolean
	case s.Counts[TypeDate] == nonNull:
		return TypeDate
	default:
		return TypeString
	}
}

// classify assigns one value to a type class.
func classify(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return TypeString
	}

	if _, ok := booleanValues[strings.ToLower(trimmed)]; ok {
		return TypeBoolean
	}

	if integerPattern.MatchString(trimmed) {
		return TypeInteger
	}

	if floatPattern.MatchString(trimmed) {
		return TypeFloat
	}

	for _, layout := range dateLayouts {
		_, err := time.Parse(layout, trimmed)
		if err == nil {
			return TypeDate
		}
	}

	return TypeString
}

// Descriptor implements Analyzer.
func (a DataType) Descriptor() Descriptor {
	return Descriptor{Name: "data_type", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a DataType) MetricKey() string {
	return "data_type." + a.column
}

// Entity implements Analyzer.
func (a DataType) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (DataType) KindTag() uint16 {
	return KindDataType
}

// ComputeState implements Analyzer via a GROUP BY so each distinct value is
// classified once.
func (a DataType) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := NewDataTypeState()

	err := scanGrouped(ctx, qc, []string{a.column}, func(row []any, count int64) error {
		value, present := query.AsString(row[0])
		if !present {
			state.Counts[TypeNull] += count
		} else {
			state.Counts[classify(value)] += count
		}

		state.Total += count

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (DataType) Merge(states []State) (State, error) {
	typed, err := castStates[*DataTypeState](states)
	if err != nil {
		return nil, err
	}

	merged := NewDataTypeState()
	for _, s := range typed {
		for class, count := range s.Counts {
			merged.Counts[class] += count
		}

		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer, producing the type-class distribution.
func (DataType) Metric(state State) (metric.Value, error) {
	s, ok := state.(*DataTypeState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	if s.Total == 0 {
		return metric.Null(), verrors.ErrNoData
	}

	buckets := make([]metric.Bucket, 0, len(typeClassOrder))
	for _, class := range typeClassOrder {
		buckets = append(buckets, metric.Bucket{Label: class, Count: s.Counts[class]})
	}

	return metric.Distribution(buckets), nil
}

// EncodeState implements Analyzer.
func (DataType) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (DataType) DecodeState(payload []byte) (State, error) {
	s := NewDataTypeState()

	err := unmarshalState(payload, s)
	if err != nil {
		return nil, err
	}

	if s.Counts == nil {
		s.Counts = map[string]int64{}
	}

	return s, nil
}
