package cache

import (
	log "github.com/sirupsen/logrus"

	"github.com/devcache/devcache/cache/pressure"
)

const (
	// fraction of memory tier entries shed per WARNING eviction pass
	warningShedFraction = 0.25
	// fraction shed per CRITICAL pass
	criticalShedFraction = 0.5
)

// lruShedStrategy drops the oldest portion of the memory tier when the
// pressure detector asks for memory back
type lruShedStrategy struct {
	manager *Manager
}

// EvictionStrategy returns a pressure eviction strategy backed by the
// manager's memory tier
func (manager *Manager) EvictionStrategy() pressure.Strategy {
	return &lruShedStrategy{
		manager: manager,
	}
}

// GetName returns the strategy name
func (strategy *lruShedStrategy) GetName() string {
	return "memory_tier_lru_shed"
}

// Evict sheds the least recently used entries
func (strategy *lruShedStrategy) Evict(level pressure.Level, stats pressure.MemoryStats) (int, int64) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "lruShedStrategy",
		"function": "Evict",
	})

	fraction := warningShedFraction
	if level == pressure.LevelCritical {
		fraction = criticalShedFraction
	}

	memory := strategy.manager.memory
	target := int(float64(memory.len()) * fraction)
	if target < 1 {
		target = 1
	}

	itemsEvicted := 0
	bytesFreed := int64(0)

	for i := 0; i < target; i++ {
		_, size, ok := memory.removeOldest()
		if !ok {
			break
		}

		itemsEvicted++
		bytesFreed += size
	}

	logger.Debugf("shed %d memory tier entries (%d bytes) at level %s", itemsEvicted, bytesFreed, level)
	return itemsEvicted, bytesFreed
}
