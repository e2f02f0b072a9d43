package anomaly

import (
	"context"
	"sync"
	"time"
)

// MetricDataPoint is one historical metric observation.
type MetricDataPoint struct {
	Key       string
	Value     float64
	Timestamp time.Time
}

// Repository stores historical metric points per key.
type Repository interface {
	// History returns up to limit trailing points for the key, oldest
	// first. limit <= 0 returns the full stored history.
	History(ctx context.Context, key string, limit int) ([]MetricDataPoint, error)

	// Append records a new point for its key.
	Append(ctx context.Context, point MetricDataPoint) error
}

// defaultMemoryCapacity bounds stored points per key in the in-memory
// repository.
const defaultMemoryCapacity = 1000

// MemoryRepository is a bounded in-process Repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	points   map[string][]MetricDataPoint
	capacity int
}

// NewMemoryRepository creates a repository keeping the default number of
// points per key.
func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithCapacity(defaultMemoryCapacity)
}

// NewMemoryRepositoryWithCapacity creates a repository keeping at most
// capacity points per key.
func NewMemoryRepositoryWithCapacity(capacity int) *MemoryRepository {
	if capacity < 1 {
		capacity = 1
	}

	return &MemoryRepository{
		points:   map[string][]MetricDataPoint{},
		capacity: capacity,
	}
}

// History implements Repository.
func (r *MemoryRepository) History(ctx context.Context, key string, limit int) ([]MetricDataPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.points[key]
	if limit > 0 && len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}

	out := make([]MetricDataPoint, len(stored))
	copy(out, stored)

	return out, nil
}

// Append implements Repository, evicting the oldest point at capacity.
func (r *MemoryRepository) Append(ctx context.Context, point MetricDataPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := append(r.points[point.Key], point)
	if len(stored) > r.capacity {
		stored = stored[len(stored)-r.capacity:]
	}

	r.points[point.Key] = stored

	return nil
}
