// Package analyzer provides the metric computation units of the validation
// engine.
//
// An analyzer is a pure descriptor: it computes a mergeable state from a
// single scan over the bound table and converts that state to a metric.
// States satisfy an algebraic contract — merge is associative and
// commutative with the empty state as identity — which is what makes
// partition-by-partition incremental validation possible.
//
// Analyzers are deduplicated and cached by fingerprint, a stable hash over
// their name, sorted columns, and parameter digest. Two analyzers with equal
// fingerprints are interchangeable.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// fingerprintSize is the truncated hash width in bytes.
const fingerprintSize = 16

// Fingerprint is a stable 128-bit identity for an analyzer's parameters.
type Fingerprint [fingerprintSize]byte

// String returns the hex form of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint restores a fingerprint from its hex form.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != fingerprintSize {
		return fp, fmt.Errorf("%w: malformed fingerprint %q", verrors.ErrInvalidData, s)
	}

	copy(fp[:], raw)

	return fp, nil
}

// Descriptor contains the stable analyzer metadata the fingerprint is
// derived from.
type Descriptor struct {
	Name         string
	Columns      []string
	ParamsDigest string
}

// Fingerprint hashes the descriptor deterministically. Column order does not
// matter: columns are sorted before hashing.
func (d Descriptor) Fingerprint() Fingerprint {
	sorted := slices.Clone(d.Columns)
	slices.Sort(sorted)

	h := sha256.New()
	h.Write([]byte(d.Name))
	h.Write([]byte{0})

	for _, col := range sorted {
		h.Write([]byte(col))
		h.Write([]byte{0})
	}

	h.Write([]byte(d.ParamsDigest))

	var fp Fingerprint
	copy(fp[:], h.Sum(nil)[:fingerprintSize])

	return fp
}

// State is an analyzer's incremental computation state. Implementations are
// value types: computable in one scan, mergeable across partitions, and
// serializable through the state codec.
type State interface {
	// IsEmpty reports whether the state observed no data.
	IsEmpty() bool
}

// Analyzer computes a mergeable state from the bound table and converts it
// to a metric. ComputeState must be safe to call concurrently with other
// analyzers and must read the table binding from the validation context,
// never from package state.
type Analyzer interface {
	// Descriptor returns the stable metadata the fingerprint derives from.
	Descriptor() Descriptor

	// MetricKey returns the dotted metric identifier, e.g. "completeness.email".
	MetricKey() string

	// Entity identifies what the produced metric describes.
	Entity() metric.Entity

	// KindTag returns the codec tag for this analyzer's state type.
	KindTag() uint16

	// ComputeState executes the analyzer's scan against the query context.
	ComputeState(ctx context.Context, qc query.Context) (State, error)

	// Merge folds states from independent partitions into one. Merge is
	// associative and commutative; empty states are identities.
	Merge(states []State) (State, error)

	// Metric converts a state to its metric value. Returns
	// verrors.ErrNoData when the state observed no data.
	Metric(state State) (metric.Value, error)

	// EncodeState serializes a state payload for the state codec.
	EncodeState(state State) ([]byte, error)

	// DecodeState restores a state payload written by EncodeState.
	DecodeState(payload []byte) (State, error)
}

// castStates narrows a heterogeneous state slice to one concrete type,
// dropping nils. A foreign type is a merge error.
func castStates[S State](states []State) ([]S, error) {
	out := make([]S, 0, len(states))

	for _, s := range states {
		if s == nil {
			continue
		}

		typed, ok := s.(S)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected state type %T", verrors.ErrStateMerge, s)
		}

		out = append(out, typed)
	}

	return out, nil
}

// marshalState encodes a state payload as JSON.
func marshalState(state any) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrSerialization, err)
	}

	return data, nil
}

// unmarshalState decodes a state payload written by marshalState.
func unmarshalState(payload []byte, state any) error {
	err := json.Unmarshal(payload, state)
	if err != nil {
		return fmt.Errorf("%w: %w", verrors.ErrStateDeserialize, err)
	}

	return nil
}
