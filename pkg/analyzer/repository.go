package analyzer

import (
	"slices"
	"strings"
	"time"

	"github.com/tidewater-io/datavet/pkg/metric"
)

// Outcome is the per-fingerprint result of a run: a metric value or the
// error that prevented one. Err may be verrors.ErrNoData, a schema
// pre-flight failure, or an execution error.
type Outcome struct {
	Value metric.Value
	Err   error
}

// Repository is the fingerprint → metric snapshot a run materializes.
type Repository struct {
	timestamp time.Time
	entries   map[Fingerprint]Outcome
}

// NewRepository creates a snapshot stamped with the run's emission time.
func NewRepository(timestamp time.Time) *Repository {
	return &Repository{
		timestamp: timestamp,
		entries:   map[Fingerprint]Outcome{},
	}
}

// Timestamp returns the snapshot's emission time.
func (r *Repository) Timestamp() time.Time {
	return r.timestamp
}

// Put records the outcome for a fingerprint.
func (r *Repository) Put(fp Fingerprint, outcome Outcome) {
	r.entries[fp] = outcome
}

// Get returns the outcome for a fingerprint.
func (r *Repository) Get(fp Fingerprint) (Outcome, bool) {
	outcome, ok := r.entries[fp]

	return outcome, ok
}

// Len returns the number of recorded fingerprints.
func (r *Repository) Len() int {
	return len(r.entries)
}

// Fingerprints returns the recorded fingerprints in stable (hex) order.
func (r *Repository) Fingerprints() []Fingerprint {
	fps := make([]Fingerprint, 0, len(r.entries))
	for fp := range r.entries {
		fps = append(fps, fp)
	}

	slices.SortFunc(fps, func(a, b Fingerprint) int {
		return strings.Compare(a.String(), b.String())
	})

	return fps
}
