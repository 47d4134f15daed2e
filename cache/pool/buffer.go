package pool

import (
	"sync"
)

const (
	bufferSizeClassMin = 4 * 1024        // 4KB
	bufferSizeClassMax = 4 * 1024 * 1024 // 4MB
	buffersPerClass    = 16
)

// BufferPoolStats is a point-in-time snapshot of buffer pool counters
type BufferPoolStats struct {
	Created uint64  `json:"created"`
	Reused  uint64  `json:"reused"`
	Dropped uint64  `json:"dropped"`
	Idle    int     `json:"idle"`
	HitRate float64 `json:"hit_rate"`
}

// BufferPool keeps byte buffers in power-of-two size classes to avoid
// repeated large allocations on compression and serialization paths
type BufferPool struct {
	classes []int
	free    map[int][][]byte

	created uint64
	reused  uint64
	dropped uint64

	mutex sync.Mutex
}

// NewBufferPool creates a new BufferPool
func NewBufferPool() *BufferPool {
	classes := []int{}
	for size := bufferSizeClassMin; size <= bufferSizeClassMax; size *= 2 {
		classes = append(classes, size)
	}

	free := make(map[int][][]byte, len(classes))
	for _, size := range classes {
		free[size] = nil
	}

	return &BufferPool{
		classes: classes,
		free:    free,
	}
}

// classFor returns the smallest size class that fits the given size,
// or 0 when the size is out of the pooled range
func (pool *BufferPool) classFor(size int) int {
	for _, class := range pool.classes {
		if size <= class {
			return class
		}
	}
	return 0
}

// Get returns a zero-length buffer with capacity of at least size
func (pool *BufferPool) Get(size int) []byte {
	class := pool.classFor(size)
	if class == 0 {
		// out of pooled range, allocate directly
		pool.mutex.Lock()
		pool.created++
		pool.mutex.Unlock()
		return make([]byte, 0, size)
	}

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	buffers := pool.free[class]
	if len(buffers) > 0 {
		buf := buffers[len(buffers)-1]
		pool.free[class] = buffers[:len(buffers)-1]
		pool.reused++
		return buf[:0]
	}

	pool.created++
	return make([]byte, 0, class)
}

// Put returns a buffer to its size class unless the class free list is full
func (pool *BufferPool) Put(buf []byte) {
	class := 0
	for _, c := range pool.classes {
		if cap(buf) == c {
			class = c
			break
		}
	}

	if class == 0 {
		return
	}

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if len(pool.free[class]) >= buffersPerClass {
		pool.dropped++
		return
	}

	pool.free[class] = append(pool.free[class], buf)
}

// Shrink drops half of the idle buffers in every size class
func (pool *BufferPool) Shrink() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	trimmed := 0
	for class, buffers := range pool.free {
		keep := len(buffers) / 2
		trimmed += len(buffers) - keep
		pool.free[class] = buffers[:keep]
	}

	return trimmed
}

// GetStats returns buffer pool statistics
func (pool *BufferPool) GetStats() BufferPoolStats {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	idle := 0
	for _, buffers := range pool.free {
		idle += len(buffers)
	}

	stats := BufferPoolStats{
		Created: pool.created,
		Reused:  pool.reused,
		Dropped: pool.dropped,
		Idle:    idle,
	}

	total := pool.created + pool.reused
	if total > 0 {
		stats.HitRate = float64(pool.reused) / float64(total)
	}

	return stats
}
