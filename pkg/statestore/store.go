// Package statestore persists analyzer states keyed by (fingerprint,
// partition) so append-only datasets can be validated partition by partition
// without reprocessing history.
package statestore

import (
	"context"

	"github.com/tidewater-io/datavet/pkg/analyzer"
)

// Store is the incremental state persistence capability.
//
// Put is atomic per key: concurrent writers to the same (fingerprint,
// partition) never produce a torn state. Rewriting a partition replaces the
// previous state via an atomic swap.
type Store interface {
	// Get loads the state for a partition. The second result is false when
	// the partition has no stored state.
	Get(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer) (analyzer.State, bool, error)

	// Put stores the state for a partition, replacing any previous state.
	Put(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer, state analyzer.State) error

	// ListPartitions returns the partitions stored for a fingerprint, in
	// lexical order.
	ListPartitions(ctx context.Context, fp analyzer.Fingerprint) ([]string, error)

	// MergeAll reduces every stored partition state through the analyzer's
	// merge. The second result is false when nothing is stored.
	MergeAll(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) (analyzer.State, bool, error)

	// Compact replaces all partition states with a single merged state
	// under a new generation id.
	Compact(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) error
}

// mergeStates folds loaded states through the analyzer, shared by backends.
func mergeStates(a analyzer.Analyzer, states []analyzer.State) (analyzer.State, bool, error) {
	if len(states) == 0 {
		return nil, false, nil
	}

	merged, err := a.Merge(states)
	if err != nil {
		return nil, false, err
	}

	return merged, true, nil
}
