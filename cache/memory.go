package cache

import (
	"sync"
	"time"

	lrucache "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"
)

// memoryTier is the bounded in-memory LRU tier. It never exceeds its
// configured entry cap; overflow evicts the least recently used entry.
type memoryTier struct {
	cache     *lrucache.Cache
	totalSize int64
	onEvict   func(entry *Entry)

	// true while an explicit remove or clear is in progress, so the LRU
	// removal callback does not report it as a capacity eviction
	suppressNotify bool

	mutex sync.Mutex
}

func newMemoryTier(maxEntries int, onEvict func(entry *Entry)) (*memoryTier, error) {
	tier := &memoryTier{
		onEvict: onEvict,
	}

	cache, err := lrucache.NewWithEvict(maxEntries, tier.onEvicted)
	if err != nil {
		return nil, xerrors.Errorf("failed to create memory tier: %w", err)
	}

	tier.cache = cache
	return tier, nil
}

func (tier *memoryTier) onEvicted(key interface{}, value interface{}) {
	if entry, ok := value.(*Entry); ok {
		tier.totalSize -= int64(entry.Size)

		if tier.onEvict != nil && !tier.suppressNotify {
			tier.onEvict(entry)
		}
	}
}

func (tier *memoryTier) get(key string) *Entry {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	if value, ok := tier.cache.Get(key); ok {
		if entry, ok := value.(*Entry); ok {
			return entry
		}
	}

	return nil
}

// peek reads without updating LRU order
func (tier *memoryTier) peek(key string) *Entry {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	if value, ok := tier.cache.Peek(key); ok {
		if entry, ok := value.(*Entry); ok {
			return entry
		}
	}

	return nil
}

// touch updates access metadata under the tier lock. Entries are shared
// between concurrent readers, so this is the only place that mutates them
// after publication.
func (tier *memoryTier) touch(key string, now time.Time) {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	if value, ok := tier.cache.Peek(key); ok {
		if entry, ok := value.(*Entry); ok {
			entry.AccessCount++
			entry.LastAccessed = now.UnixMilli()
		}
	}
}

func (tier *memoryTier) put(entry *Entry) {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	if value, ok := tier.cache.Peek(entry.Key); ok {
		if existing, ok := value.(*Entry); ok {
			tier.totalSize -= int64(existing.Size)
		}
	}

	tier.totalSize += int64(entry.Size)
	tier.cache.Add(entry.Key, entry)
}

func (tier *memoryTier) remove(key string) bool {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	tier.suppressNotify = true
	removed := tier.cache.Remove(key)
	tier.suppressNotify = false

	return removed
}

func (tier *memoryTier) contains(key string) bool {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	return tier.cache.Contains(key)
}

func (tier *memoryTier) clear() {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	tier.suppressNotify = true
	tier.cache.Purge()
	tier.suppressNotify = false
	tier.totalSize = 0
}

func (tier *memoryTier) len() int {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	return tier.cache.Len()
}

func (tier *memoryTier) size() int64 {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	return tier.totalSize
}

// keys returns keys from oldest to newest
func (tier *memoryTier) keys() []string {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	rawKeys := tier.cache.Keys()
	keys := make([]string, 0, len(rawKeys))
	for _, rawKey := range rawKeys {
		if key, ok := rawKey.(string); ok {
			keys = append(keys, key)
		}
	}

	return keys
}

// removeOldest evicts the LRU entry, returning its size
func (tier *memoryTier) removeOldest() (string, int64, bool) {
	tier.mutex.Lock()
	defer tier.mutex.Unlock()

	key, value, ok := tier.cache.RemoveOldest()
	if !ok {
		return "", 0, false
	}

	keyStr, _ := key.(string)
	size := int64(0)
	if entry, ok := value.(*Entry); ok {
		size = int64(entry.Size)
	}

	return keyStr, size, true
}
