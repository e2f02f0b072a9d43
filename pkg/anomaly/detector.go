package anomaly

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// rule binds a metric-key pattern to a strategy.
type rule struct {
	pattern  *regexp.Regexp
	strategy Strategy
}

// Config maps metric-key patterns to detection strategies over a shared
// history repository.
type Config struct {
	repository Repository
	rules      []rule
}

// NewConfig creates a detector configuration over the given repository.
func NewConfig(repository Repository) (*Config, error) {
	if repository == nil {
		return nil, fmt.Errorf("%w: anomaly config needs a repository", verrors.ErrInvalidConfiguration)
	}

	return &Config{repository: repository}, nil
}

// AddPattern registers a strategy for metric keys matching the regular
// expression. Rules apply in registration order; every matching rule runs.
func (c *Config) AddPattern(pattern string, strategy Strategy) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: anomaly pattern %q: %w", verrors.ErrInvalidConfiguration, pattern, err)
	}

	c.rules = append(c.rules, rule{pattern: compiled, strategy: strategy})

	return nil
}

// Repository exposes the configured history store.
func (c *Config) Repository() Repository {
	return c.repository
}

// Detector applies configured strategies to incoming metric points.
type Detector struct {
	cfg *Config
}

// NewDetector creates a detector over the configuration.
func NewDetector(cfg *Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect checks each point against its matching strategies and then appends
// the point to the history, so consecutive runs trend forward.
func (d *Detector) Detect(ctx context.Context, points []MetricDataPoint) ([]Anomaly, error) {
	var anomalies []Anomaly

	for _, point := range points {
		for _, r := range d.cfg.rules {
			if !r.pattern.MatchString(point.Key) {
				continue
			}

			history, err := d.cfg.repository.History(ctx, point.Key, 0)
			if err != nil {
				return nil, fmt.Errorf("anomaly history for %s: %w", point.Key, err)
			}

			if found := r.strategy.Detect(history, point); found != nil {
				anomalies = append(anomalies, *found)
			}
		}

		err := d.cfg.repository.Append(ctx, point)
		if err != nil {
			return nil, fmt.Errorf("anomaly append for %s: %w", point.Key, err)
		}
	}

	return anomalies, nil
}
