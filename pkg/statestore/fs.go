package statestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

const (
	stateExtension = ".state"
	tmpPattern     = ".tmp-*"
	dirPerm        = 0o750
)

// partitionPattern bounds partition ids to filesystem-safe names.
var partitionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FSStore is a filesystem-backed Store. Layout: one directory per analyzer
// fingerprint, one lz4-compressed state file per partition. Swaps go through
// write-temp+rename so readers never observe a torn file; the state frame's
// CRC32 catches corruption at rest.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create state store root: %w", err)
	}

	return &FSStore{root: dir}, nil
}

// fingerprintDir returns the directory for a fingerprint.
func (s *FSStore) fingerprintDir(fp analyzer.Fingerprint) string {
	return filepath.Join(s.root, fp.String())
}

// partitionPath returns the state file for a partition.
func (s *FSStore) partitionPath(fp analyzer.Fingerprint, partition string) string {
	return filepath.Join(s.fingerprintDir(fp), partition+stateExtension)
}

// validatePartition rejects partition ids that cannot be file names.
func validatePartition(partition string) error {
	if !partitionPattern.MatchString(partition) {
		return fmt.Errorf("%w: partition id %q", verrors.ErrInvalidConfiguration, partition)
	}

	return nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer) (analyzer.State, bool, error) {
	if err := validatePartition(partition); err != nil {
		return nil, false, err
	}

	if err := ctx.Err(); err != nil {
		return nil, false, verrors.FromContext(err)
	}

	data, err := readCompressed(s.partitionPath(fp, partition))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	state, err := analyzer.DecodeState(a, data)
	if err != nil {
		return nil, false, err
	}

	return state, true, nil
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, fp analyzer.Fingerprint, partition string, a analyzer.Analyzer, state analyzer.State) error {
	if err := validatePartition(partition); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return verrors.FromContext(err)
	}

	frame, err := analyzer.EncodeState(a, state)
	if err != nil {
		return err
	}

	dir := s.fingerprintDir(fp)

	err = os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create fingerprint dir: %w", err)
	}

	return writeCompressed(dir, s.partitionPath(fp, partition), frame)
}

// ListPartitions implements Store.
func (s *FSStore) ListPartitions(ctx context.Context, fp analyzer.Fingerprint) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, verrors.FromContext(err)
	}

	entries, err := os.ReadDir(s.fingerprintDir(fp))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var partitions []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, stateExtension) {
			continue
		}

		partitions = append(partitions, strings.TrimSuffix(name, stateExtension))
	}

	sort.Strings(partitions)

	return partitions, nil
}

// MergeAll implements Store.
func (s *FSStore) MergeAll(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) (analyzer.State, bool, error) {
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

// Compact implements Store: all partition files are replaced by a single
// merged file under a fresh generation id.
func (s *FSStore) Compact(ctx context.Context, fp analyzer.Fingerprint, a analyzer.Analyzer) error {
	partitions, err := s.ListPartitions(ctx, fp)
	if err != nil {
		return err
	}

	if len(partitions) == 0 {
		return nil
	}

	merged, ok, err := s.MergeAll(ctx, fp, a)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	generation := fmt.Sprintf("gen-%d", time.Now().UnixNano())

	err = s.Put(ctx, fp, generation, a, merged)
	if err != nil {
		return err
	}

	for _, partition := range partitions {
		removeErr := os.Remove(s.partitionPath(fp, partition))
		if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			return fmt.Errorf("compact cleanup: %w", removeErr)
		}
	}

	return nil
}

// writeCompressed writes data to path through a temp file and atomic rename.
func writeCompressed(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	writer := lz4.NewWriter(tmp)

	_, err = writer.Write(data)
	if err == nil {
		err = writer.Close()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("write state file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("swap state file: %w", err)
	}

	return nil
}

// readCompressed reads and decompresses a state file.
func readCompressed(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(lz4.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateDeserialize, err)
	}

	return data, nil
}
