package sink

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidewater-io/datavet/pkg/metric"
)

// PrometheusSink exports numeric metric records as Prometheus gauges labelled
// by metric key and table.
type PrometheusSink struct {
	values *prometheus.GaugeVec
	sent   prometheus.Counter
}

// NewPrometheusSink registers the exported collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "datavet",
			Name:      "metric_value",
			Help:      "Latest value of a data-quality metric.",
		}, []string{"key", "table", "suite"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datavet",
			Name:      "metric_records_total",
			Help:      "Metric records delivered to the Prometheus sink.",
		}),
	}

	for _, collector := range []prometheus.Collector{s.values, s.sent} {
		err := reg.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("register prometheus sink: %w", err)
		}
	}

	return s, nil
}

// Send implements Sink. Non-numeric records (distributions, sketches) are
// counted but not exported as gauges.
func (s *PrometheusSink) Send(record metric.Record) error {
	s.sent.Inc()

	value, ok := record.Value.AsDouble()
	if !ok {
		return nil
	}

	s.values.With(prometheus.Labels{
		"key":   record.Key,
		"table": record.Tags["table"],
		"suite": record.Tags["suite"],
	}).Set(value)

	return nil
}

// Flush implements Sink; the Prometheus model is pull-based.
func (s *PrometheusSink) Flush() error {
	return nil
}
