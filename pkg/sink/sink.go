// Package sink delivers metric records to downstream consumers. The engine
// guarantees nothing about transport; a sink owns buffering and delivery.
package sink

import (
	"log/slog"

	"github.com/tidewater-io/datavet/pkg/metric"
)

// Sink consumes the metric stream of a run.
type Sink interface {
	// Send delivers one record. Errors are surfaced as run diagnostics,
	// never as run failures.
	Send(record metric.Record) error

	// Flush drains any buffered records.
	Flush() error
}

// SlogSink writes records to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over the given logger; nil uses the default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogSink{logger: logger}
}

// Send implements Sink.
func (s *SlogSink) Send(record metric.Record) error {
	s.logger.Info("metric",
		"key", record.Key,
		"value", record.Value.String(),
		"entity", record.Entity.String(),
		"tags", record.TagString(),
	)

	return nil
}

// Flush implements Sink.
func (s *SlogSink) Flush() error {
	return nil
}

// Multi fans records out to several sinks, returning the first error.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Send implements Sink.
func (m *Multi) Send(record metric.Record) error {
	for _, s := range m.sinks {
		err := s.Send(record)
		if err != nil {
			return err
		}
	}

	return nil
}

// Flush implements Sink.
func (m *Multi) Flush() error {
	for _, s := range m.sinks {
		err := s.Flush()
		if err != nil {
			return err
		}
	}

	return nil
}
