package pool

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ObjectPoolStats is a point-in-time snapshot of pool counters
type ObjectPoolStats struct {
	Created  uint64  `json:"created"`
	Reused   uint64  `json:"reused"`
	Released uint64  `json:"released"`
	Dropped  uint64  `json:"dropped"`
	Idle     int     `json:"idle"`
	HitRate  float64 `json:"hit_rate"`
}

// ObjectPool keeps reusable instances to reduce allocation churn
type ObjectPool[T any] struct {
	construct func() T
	reset     func(T)
	capacity  int
	minIdle   int

	free []T

	created  uint64
	reused   uint64
	released uint64
	dropped  uint64

	mutex sync.Mutex
}

// NewObjectPool creates a new ObjectPool
func NewObjectPool[T any](capacity int, minIdle int, construct func() T, reset func(T)) *ObjectPool[T] {
	if capacity <= 0 {
		capacity = 32
	}

	if minIdle < 0 {
		minIdle = 0
	}

	return &ObjectPool[T]{
		construct: construct,
		reset:     reset,
		capacity:  capacity,
		minIdle:   minIdle,
		free:      make([]T, 0, capacity),
	}
}

// Acquire pops a free instance or constructs a new one
func (pool *ObjectPool[T]) Acquire() T {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if len(pool.free) > 0 {
		obj := pool.free[len(pool.free)-1]
		pool.free = pool.free[:len(pool.free)-1]
		pool.reused++
		return obj
	}

	pool.created++
	return pool.construct()
}

// Release resets the instance and returns it to the pool unless at capacity
func (pool *ObjectPool[T]) Release(obj T) {
	if pool.reset != nil {
		pool.reset(obj)
	}

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if len(pool.free) >= pool.capacity {
		pool.dropped++
		return
	}

	pool.free = append(pool.free, obj)
	pool.released++
}

// Shrink trims the free list toward the configured minimum
func (pool *ObjectPool[T]) Shrink() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	trimmed := 0
	for len(pool.free) > pool.minIdle {
		var zero T
		pool.free[len(pool.free)-1] = zero
		pool.free = pool.free[:len(pool.free)-1]
		trimmed++
	}

	return trimmed
}

// GetStats returns pool statistics
func (pool *ObjectPool[T]) GetStats() ObjectPoolStats {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	stats := ObjectPoolStats{
		Created:  pool.created,
		Reused:   pool.reused,
		Released: pool.released,
		Dropped:  pool.dropped,
		Idle:     len(pool.free),
	}

	total := pool.created + pool.reused
	if total > 0 {
		stats.HitRate = float64(pool.reused) / float64(total)
	}

	return stats
}

// StartShrinker starts a background loop that shrinks the pool periodically.
// The returned function stops the loop.
func (pool *ObjectPool[T]) StartShrinker(interval time.Duration) func() {
	logger := log.WithFields(log.Fields{
		"package":  "pool",
		"struct":   "ObjectPool",
		"function": "StartShrinker",
	})

	if interval <= 0 {
		interval = time.Minute
	}

	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				trimmed := pool.Shrink()
				if trimmed > 0 {
					logger.Debugf("trimmed %d idle pool objects", trimmed)
				}
			}
		}
	}()

	return func() {
		close(stopCh)
	}
}
