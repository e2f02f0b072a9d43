package statestore

import (
	"context"
	"sort"
	"sync"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// MemoryStore is an in-process Store used by tests and ephemeral runs. It
// stores encoded frames so the codec path matches the filesystem backend.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[analyzer.Fingerprint]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: map[analyzer.Fingerprint]map[string][]byte{}}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer) (analyzer.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, verrors.FromContext(err)
	}

	s.mu.RLock()
	frame, ok := s.frames[fp][partition]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	state, err := analyzer.DecodeState(a, frame)
	if err != nil {
		return nil, false, err
	}

	return state, true, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer, state analyzer.State) error {
	if err := ctx.Err(); err != nil {
		return verrors.FromContext(err)
	}

	frame, err := analyzer.EncodeState(a, state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frames[fp] == nil {
		s.frames[fp] = map[string][]byte{}
	}

	s.frames[fp][partition] = frame

	return nil
}

// ListPartitions implements Store.
func (s *MemoryStore) ListPartitions(ctx context.Context, fp analyzer.Fingerprint) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, verrors.FromContext(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	partitions := make([]string, 0, len(s.frames[fp]))
	for partition := range s.frames[fp] {
		partitions = append(partitions, partition)
	}

	sort.Strings(partitions)

	return partitions, nil
}

// MergeAll implements Store.
func (s *MemoryStore) MergeAll(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) (analyzer.State, bool, error) {
	partitions, err := s.ListPartitions(ctx, fp)
	if err != nil {
		return nil, false, err
	}

	states := make([]analyzer.State, 0, len(partitions))

	for _, partition := range partitions {
		state, ok, getErr := s.Get(ctx, fp, partition, a)
		if getErr != nil {
			return nil, false, getErr
		}

		if ok {
			states = append(states, state)
		}
	}

	return mergeStates(a, states)
}

// Compact implements Store.
func (s *MemoryStore) Compact(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) error {
	merged, ok, err := s.MergeAll(ctx, fp, a)
	if err != nil || !ok {
		return err
	}

	frame, err := analyzer.EncodeState(a, merged)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames[fp] = map[string][]byte{"gen-0": frame}

	return nil
}
