package pressure

import (
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devcache/devcache/commons"
)

// Level classifies process memory usage
type Level string

const (
	LevelNormal   Level = "NORMAL"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

const (
	statsHistorySize = 60

	evictionCooldown = 10 * time.Second
	gcCooldown       = 30 * time.Second
)

// MemoryStats is an immutable point-in-time memory sample
type MemoryStats struct {
	HeapAlloc       uint64    `json:"heap_alloc"`
	HeapSys         uint64    `json:"heap_sys"`
	Available       int64     `json:"available"`
	UsagePercentage float64   `json:"usage_percentage"`
	Timestamp       time.Time `json:"timestamp"`
}

// Strategy frees memory when pressure rises.
// Implementations report items evicted and bytes freed.
type Strategy interface {
	GetName() string
	Evict(level Level, stats MemoryStats) (int, int64)
}

// DetectorStats is a point-in-time snapshot of detector counters
type DetectorStats struct {
	Level         Level       `json:"level"`
	LastSample    MemoryStats `json:"last_sample"`
	Samples       uint64      `json:"samples"`
	Evictions     uint64      `json:"evictions"`
	ItemsEvicted  int         `json:"items_evicted"`
	BytesFreed    int64       `json:"bytes_freed"`
	GCHints       uint64      `json:"gc_hints"`
	Transitions   uint64      `json:"transitions"`
}

// Detector samples process memory, classifies pressure, and drives
// registered eviction strategies
type Detector struct {
	warningThreshold  float64
	criticalThreshold float64
	interval          time.Duration
	autoEviction      bool
	maxMemory         int64

	level      Level
	history    []MemoryStats
	strategies []Strategy

	samples      uint64
	evictions    uint64
	itemsEvicted int
	bytesFreed   int64
	gcHints      uint64
	transitions  uint64

	lastEviction time.Time
	lastGCHint   time.Time

	// test hook; reads runtime memory stats when nil
	sampleFunc func() MemoryStats

	stopCh  chan struct{}
	started bool

	mutex sync.Mutex
}

// NewDetector creates a new memory pressure Detector
func NewDetector(config commons.MemoryPressureConfig) *Detector {
	return &Detector{
		warningThreshold:  config.WarningThreshold,
		criticalThreshold: config.CriticalThreshold,
		interval:          config.MonitoringInterval,
		autoEviction:      config.AutoEviction,
		maxMemory:         config.MaxMemory,

		level:   LevelNormal,
		history: make([]MemoryStats, 0, statsHistorySize),
		stopCh:  make(chan struct{}),
	}
}

// RegisterStrategy appends an eviction strategy.
// Strategies run in registration order.
func (detector *Detector) RegisterStrategy(strategy Strategy) {
	detector.mutex.Lock()
	defer detector.mutex.Unlock()

	detector.strategies = append(detector.strategies, strategy)
}

// Start begins periodic sampling. The detector is restartable; a
// stopped detector starts a fresh monitor goroutine.
func (detector *Detector) Start() {
	detector.mutex.Lock()
	if detector.started {
		detector.mutex.Unlock()
		return
	}
	detector.started = true
	// a previous Stop leaves the channel closed
	detector.stopCh = make(chan struct{})
	stopCh := detector.stopCh
	detector.mutex.Unlock()

	go detector.monitor(stopCh)
}

// Stop ends periodic sampling
func (detector *Detector) Stop() {
	detector.mutex.Lock()
	defer detector.mutex.Unlock()

	if !detector.started {
		return
	}

	detector.started = false
	close(detector.stopCh)
}

func (detector *Detector) monitor(stopCh chan struct{}) {
	interval := detector.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			detector.Check()
		}
	}
}

// sample takes a memory snapshot.
// Heap-reserved memory stands in for rss; the process has no portable
// rss counter in the runtime.
func (detector *Detector) sample() MemoryStats {
	if detector.sampleFunc != nil {
		return detector.sampleFunc()
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := MemoryStats{
		HeapAlloc: memStats.HeapAlloc,
		HeapSys:   memStats.HeapSys,
		Timestamp: time.Now(),
	}

	if detector.maxMemory > 0 {
		stats.Available = detector.maxMemory - int64(memStats.HeapSys)
		stats.UsagePercentage = float64(memStats.HeapSys) / float64(detector.maxMemory)
	}

	return stats
}

// classify maps a usage percentage to a pressure level
func (detector *Detector) classify(usage float64) Level {
	switch {
	case usage >= detector.criticalThreshold:
		return LevelCritical
	case usage >= detector.warningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Check takes one sample, updates the level, and runs eviction when due.
// It is called by the monitor loop and directly by tests.
func (detector *Detector) Check() MemoryStats {
	logger := log.WithFields(log.Fields{
		"package":  "pressure",
		"struct":   "Detector",
		"function": "Check",
	})

	stats := detector.sample()

	detector.mutex.Lock()

	detector.samples++
	detector.history = append(detector.history, stats)
	if len(detector.history) > statsHistorySize {
		detector.history = detector.history[1:]
	}

	newLevel := detector.classify(stats.UsagePercentage)
	transitioned := newLevel != detector.level
	if transitioned {
		detector.transitions++
		logger.Infof("memory pressure level changed %s -> %s (usage %.1f%%)", detector.level, newLevel, stats.UsagePercentage*100)
		detector.level = newLevel
	}

	shouldEvict := detector.autoEviction &&
		(transitioned && newLevel != LevelNormal || newLevel == LevelCritical) &&
		time.Since(detector.lastEviction) >= evictionCooldown

	shouldGC := newLevel == LevelCritical && time.Since(detector.lastGCHint) >= gcCooldown

	if shouldEvict {
		detector.lastEviction = time.Now()
	}
	if shouldGC {
		detector.lastGCHint = time.Now()
		detector.gcHints++
	}

	strategies := detector.strategies
	detector.mutex.Unlock()

	if shouldEvict {
		detector.runEviction(strategies, newLevel, stats)
	}

	if shouldGC {
		logger.Debug("requesting garbage collection under critical memory pressure")
		runtime.GC()
	}

	return stats
}

// runEviction invokes strategies in registration order until usage drops
// below the warning threshold or all strategies have run
func (detector *Detector) runEviction(strategies []Strategy, level Level, stats MemoryStats) {
	logger := log.WithFields(log.Fields{
		"package":  "pressure",
		"struct":   "Detector",
		"function": "runEviction",
	})

	totalItems := 0
	totalBytes := int64(0)

	for _, strategy := range strategies {
		items, bytes := strategy.Evict(level, stats)
		totalItems += items
		totalBytes += bytes

		logger.Infof("eviction strategy %q freed %d items, %d bytes", strategy.GetName(), items, bytes)

		current := detector.sample()
		if detector.classify(current.UsagePercentage) == LevelNormal {
			break
		}
	}

	detector.mutex.Lock()
	detector.evictions++
	detector.itemsEvicted += totalItems
	detector.bytesFreed += totalBytes
	detector.mutex.Unlock()
}

// GetLevel returns the current pressure level
func (detector *Detector) GetLevel() Level {
	detector.mutex.Lock()
	defer detector.mutex.Unlock()

	return detector.level
}

// GetStats returns detector statistics
func (detector *Detector) GetStats() DetectorStats {
	detector.mutex.Lock()
	defer detector.mutex.Unlock()

	stats := DetectorStats{
		Level:        detector.level,
		Samples:      detector.samples,
		Evictions:    detector.evictions,
		ItemsEvicted: detector.itemsEvicted,
		BytesFreed:   detector.bytesFreed,
		GCHints:      detector.gcHints,
		Transitions:  detector.transitions,
	}

	if len(detector.history) > 0 {
		stats.LastSample = detector.history[len(detector.history)-1]
	}

	return stats
}

// GetHistory returns a copy of the retained samples
func (detector *Detector) GetHistory() []MemoryStats {
	detector.mutex.Lock()
	defer detector.mutex.Unlock()

	history := make([]MemoryStats, len(detector.history))
	copy(history, detector.history)
	return history
}
