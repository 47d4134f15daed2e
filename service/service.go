package service

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/devcache/devcache/cache"
	"github.com/devcache/devcache/cache/pressure"
	"github.com/devcache/devcache/commons"
)

// interval for trimming idle pooled buffers and writers
const poolShrinkInterval = 1 * time.Minute

// CacheService is the process-resident cache engine. It owns the cache
// manager and the memory pressure detector, and feeds their statistics to
// the prometheus exporter.
type CacheService struct {
	config *commons.Config

	manager  *cache.Manager
	detector *pressure.Detector

	statsTicker  *time.Ticker
	shrinkTicker *time.Ticker
	stopCh       chan struct{}
	waitGroup    sync.WaitGroup

	started bool
	mutex   sync.Mutex
}

// NewCacheService creates a new CacheService
func NewCacheService(config *commons.Config) (*CacheService, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "NewCacheService",
	})

	err := config.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}

	manager, err := cache.NewManager(config.Cache)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cache manager: %w", err)
	}

	detector := pressure.NewDetector(config.Cache.MemoryPressure)
	detector.RegisterStrategy(manager.EvictionStrategy())

	manager.SetEventListener(countLifecycleEvent)

	logger.Infof("created cache service, base dir %s", config.Cache.BaseDir)

	return &CacheService{
		config:   config,
		manager:  manager,
		detector: detector,
		stopCh:   make(chan struct{}),
	}, nil
}

// GetManager returns the cache manager
func (svc *CacheService) GetManager() *cache.Manager {
	return svc.manager
}

// GetDetector returns the memory pressure detector
func (svc *CacheService) GetDetector() *pressure.Detector {
	return svc.detector
}

// Start starts background monitoring
func (svc *CacheService) Start() error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "Start",
	})

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.started {
		return xerrors.Errorf("cache service is already started")
	}

	svc.detector.Start()

	flushInterval := svc.config.Cache.BackgroundWorkers.FlushInterval
	if flushInterval <= 0 {
		flushInterval = commons.BackgroundFlushIntervalDefault
	}

	svc.statsTicker = time.NewTicker(flushInterval)
	svc.shrinkTicker = time.NewTicker(poolShrinkInterval)
	// a previous Stop leaves the channel closed
	svc.stopCh = make(chan struct{})
	svc.waitGroup.Add(1)
	go svc.statsLoop(svc.stopCh)

	svc.started = true
	logger.Info("started cache service")
	return nil
}

// statsLoop periodically pushes statistics snapshots to prometheus and
// trims idle memory pools
func (svc *CacheService) statsLoop(stopCh chan struct{}) {
	defer svc.waitGroup.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-svc.statsTicker.C:
			publishStats(svc.manager.GetStats(), svc.detector.GetStats())
		case <-svc.shrinkTicker.C:
			svc.manager.ShrinkPools()
		}
	}
}

// Stop stops background monitoring
func (svc *CacheService) Stop() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "Stop",
	})

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if !svc.started {
		return
	}

	svc.detector.Stop()
	svc.statsTicker.Stop()
	svc.shrinkTicker.Stop()
	close(svc.stopCh)
	svc.waitGroup.Wait()

	svc.started = false
	logger.Info("stopped cache service")
}

// Release releases all resources
func (svc *CacheService) Release() {
	svc.manager.Release()
}
