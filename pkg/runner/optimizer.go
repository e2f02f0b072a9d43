package runner

import (
	"context"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/validate"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Stats cache defaults, matching the optimizer's five-minute freshness
// horizon.
const (
	defaultStatsTTL     = 5 * time.Minute
	defaultStatsEntries = 1000
)

// maxGroupExprs bounds how many aggregate expressions one grouped query
// carries.
const maxGroupExprs = 64

// smallTableRows is the row-count hint below which grouping buys nothing:
// per-analyzer queries stay isolated instead.
const smallTableRows = 10_000

// statsEntry is one cached statistic with its write time.
type statsEntry struct {
	value   float64
	written time.Time
}

// StatsCache is the optimizer's shared statistic cache: TTL-bounded,
// capacity-bounded with oldest-entry eviction. Reads take a shared lock;
// writes evict the oldest entry at capacity.
type StatsCache struct {
	mu         sync.RWMutex
	entries    map[string]statsEntry
	ttl        time.Duration
	maxEntries int
}

// NewStatsCache creates a cache with the default TTL and capacity.
func NewStatsCache() *StatsCache {
	return NewStatsCacheWithConfig(defaultStatsTTL, defaultStatsEntries)
}

// NewStatsCacheWithConfig creates a cache with explicit TTL and capacity.
func NewStatsCacheWithConfig(ttl time.Duration, maxEntries int) *StatsCache {
	if maxEntries < 1 {
		maxEntries = 1
	}

	return &StatsCache{
		entries:    map[string]statsEntry{},
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get returns a fresh cached value.
func (c *StatsCache) Get(key string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(entry.written) >= c.ttl {
		return 0, false
	}

	return entry.value, true
}

// Set stores a value, evicting the oldest entry at capacity.
func (c *StatsCache) Set(key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = statsEntry{value: value, written: time.Now()}
}

// Len returns the number of stored entries, fresh or not.
func (c *StatsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// evictOldestLocked drops the entry with the oldest write time.
func (c *StatsCache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)

	for key, entry := range c.entries {
		if first || entry.written.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.written
			first = false
		}
	}

	if !first {
		delete(c.entries, oldestKey)
	}
}

// unitResult is the per-fingerprint outcome of an execution unit.
type unitResult struct {
	state analyzer.State
	err   error
}

// executionUnit is one schedulable piece of work: a single analyzer or a
// grouped aggregate query.
type executionUnit interface {
	fingerprints() []analyzer.Fingerprint
	run(ctx context.Context, qc query.Context) map[analyzer.Fingerprint]unitResult
}

// singleUnit executes one analyzer through its own ComputeState.
type singleUnit struct {
	a  analyzer.Analyzer
	fp analyzer.Fingerprint
}

func (u singleUnit) fingerprints() []analyzer.Fingerprint {
	return []analyzer.Fingerprint{u.fp}
}

func (u singleUnit) run(ctx context.Context, qc query.Context) map[analyzer.Fingerprint]unitResult {
	state, err := u.a.ComputeState(ctx, qc)

	return map[analyzer.Fingerprint]unitResult{u.fp: {state: state, err: err}}
}

// groupUnit executes several pure aggregates as one shared-scan query.
// Grouping never changes results, only the number of physical queries.
type groupUnit struct {
	aggs []analyzer.Aggregate
	fps  []analyzer.Fingerprint
}

func (u groupUnit) fingerprints() []analyzer.Fingerprint {
	return u.fps
}

func (u groupUnit) run(ctx context.Context, qc query.Context) map[analyzer.Fingerprint]unitResult {
	results := make(map[analyzer.Fingerprint]unitResult, len(u.aggs))

	fail := func(err error) map[analyzer.Fingerprint]unitResult {
		for _, fp := range u.fps {
			results[fp] = unitResult{err: err}
		}

		return results
	}

	vc, err := validate.FromContext(ctx)
	if err != nil {
		return fail(err)
	}

	var exprs []string
	for _, agg := range u.aggs {
		exprs = append(exprs, agg.AggregateExprs()...)
	}

	sqlText, args, err := sq.Select(exprs...).From(vc.QuotedTable()).ToSql()
	if err != nil {
		return fail(err)
	}

	batches, err := qc.RunSQL(ctx, sqlText, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(verrors.FromContext(ctxErr))
		}

		return fail(err)
	}

	row, _ := query.FirstRow(batches)

	offset := 0

	for i, agg := range u.aggs {
		width := len(agg.AggregateExprs())

		var sub []any
		if row != nil {
			sub = row[offset : offset+width]
		}

		state, stateErr := agg.StateFromRow(sub)
		results[u.fps[i]] = unitResult{state: state, err: stateErr}

		offset += width
	}

	return results
}

// plan turns the deduplicated analyzer list into execution units. With the
// optimizer enabled, pure aggregates reading the same table collapse into
// shared-scan queries (chunked by expression budget) unless the cached row
// count says the table is small enough that isolation is worth more than
// query fusion.
func plan(order []analyzer.Fingerprint, analyzers map[analyzer.Fingerprint]analyzer.Analyzer, optimize bool, rowCountHint *float64) []executionUnit {
	var units []executionUnit

	groupAggregates := optimize && (rowCountHint == nil || *rowCountHint >= smallTableRows)

	var (
		pendingAggs []analyzer.Aggregate
		pendingFps  []analyzer.Fingerprint
		pendingSize int
	)

	flush := func() {
		if len(pendingAggs) == 0 {
			return
		}

		if len(pendingAggs) == 1 {
			units = append(units, singleUnit{a: pendingAggs[0], fp: pendingFps[0]})
		} else {
			units = append(units, groupUnit{aggs: pendingAggs, fps: pendingFps})
		}

		pendingAggs = nil
		pendingFps = nil
		pendingSize = 0
	}

	for _, fp := range order {
		a, ok := analyzers[fp]
		if !ok {
			continue
		}

		agg, isAgg := a.(analyzer.Aggregate)
		if !groupAggregates || !isAgg {
			units = append(units, singleUnit{a: a, fp: fp})

			continue
		}

		width := len(agg.AggregateExprs())
		if pendingSize+width > maxGroupExprs {
			flush()
		}

		pendingAggs = append(pendingAggs, agg)
		pendingFps = append(pendingFps, fp)
		pendingSize += width
	}

	flush()

	return units
}
