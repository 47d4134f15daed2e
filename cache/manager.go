package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/devcache/devcache/cache/batch"
	"github.com/devcache/devcache/cache/breaker"
	"github.com/devcache/devcache/cache/compress"
	"github.com/devcache/devcache/cache/fileops"
	"github.com/devcache/devcache/cache/integrity"
	"github.com/devcache/devcache/cache/pool"
	"github.com/devcache/devcache/cache/storage"
	"github.com/devcache/devcache/commons"
	"github.com/devcache/devcache/utils"
)

// Stats is a point-in-time snapshot of cache statistics for the external
// metrics collector
type Stats struct {
	Hits             uint64                 `json:"hits"`
	Misses           uint64                 `json:"misses"`
	HitRate          float64                `json:"hit_rate"`
	Sets             uint64                 `json:"sets"`
	Deletes          uint64                 `json:"deletes"`
	Rejected         uint64                 `json:"rejected"`
	MemoryEntries    int                    `json:"memory_entries"`
	TotalSize        int64                  `json:"total_size"`
	CompressionRatio float64                `json:"compression_ratio"`
	Breaker          breaker.Stats          `json:"breaker"`
	BufferPool       pool.BufferPoolStats   `json:"buffer_pool"`
	Batch            batch.Stats            `json:"batch"`
}

// Manager composes the storage engine components into the public
// get/set/delete/has API. It owns the in-memory LRU tier and coordinates
// the on-disk tier.
type Manager struct {
	config commons.CacheConfig

	memory     *memoryTier
	storage    *storage.PartitionedStorage
	writer     *fileops.AtomicWriter
	breaker    *breaker.CircuitBreaker
	compressor compress.Compressor
	validator  *integrity.Validator
	bufferPool *pool.BufferPool
	batcher    *batch.Processor

	listener EventListener

	hits           uint64
	misses         uint64
	sets           uint64
	deletes        uint64
	rejected       uint64
	bytesOriginal  int64
	bytesOnDisk    int64

	statsMutex sync.Mutex
}

// NewManager creates a Manager, constructing its components from the
// configuration
func NewManager(config commons.CacheConfig) (*Manager, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	partitions := 1
	if config.PartitionedStorage.Enabled {
		partitions = config.PartitionedStorage.Partitions
	}

	partitionedStorage, err := storage.NewPartitionedStorage(config.BaseDir, partitions)
	if err != nil {
		return nil, xerrors.Errorf("failed to create partitioned storage: %w", err)
	}

	bufferPool := pool.NewBufferPool()

	var compressor compress.Compressor
	if config.Compression.UseWorkers {
		compressor = compress.NewPooledCompressor(config.Compression.Level, config.Compression.MaxWorkers, config.Compression.WorkerThreshold, bufferPool)
	} else {
		compressor = compress.NewInlineCompressor(config.Compression.Level, bufferPool)
	}

	var hmacKey []byte
	if len(config.Checksum.HMACKey) > 0 {
		hmacKey = []byte(config.Checksum.HMACKey)
	}

	validator, err := integrity.NewValidator(integrity.Algorithm(config.Checksum.Algorithm), integrity.Algorithm(config.Checksum.SecondaryAlgorithm), hmacKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to create checksum validator: %w", err)
	}

	circuitBreaker := breaker.NewCircuitBreaker("cache_disk", config.CircuitBreaker)

	batcher := batch.NewProcessor(config.BackgroundWorkers.BatchSize, config.BackgroundWorkers.MaxWorkers, 5*time.Second, 2, 10*time.Millisecond)

	return NewManagerWithComponents(config, partitionedStorage, fileops.NewAtomicWriter(), circuitBreaker, compressor, validator, bufferPool, batcher)
}

// NewManagerWithComponents creates a Manager from pre-built components
func NewManagerWithComponents(config commons.CacheConfig, partitionedStorage *storage.PartitionedStorage, writer *fileops.AtomicWriter, circuitBreaker *breaker.CircuitBreaker, compressor compress.Compressor, validator *integrity.Validator, bufferPool *pool.BufferPool, batcher *batch.Processor) (*Manager, error) {
	manager := &Manager{
		config:     config,
		storage:    partitionedStorage,
		writer:     writer,
		breaker:    circuitBreaker,
		compressor: compressor,
		validator:  validator,
		bufferPool: bufferPool,
		batcher:    batcher,
	}

	memory, err := newMemoryTier(config.MaxMemoryEntries, func(entry *Entry) {
		manager.emit(EventEvicted, entry.Key)
	})
	if err != nil {
		return nil, err
	}

	manager.memory = memory
	return manager, nil
}

// SetEventListener registers a lifecycle event listener
func (manager *Manager) SetEventListener(listener EventListener) {
	manager.listener = listener
}

// emit notifies the listener, when present
func (manager *Manager) emit(eventType EventType, key string) {
	if manager.listener != nil {
		manager.listener(Event{
			Type:      eventType,
			Key:       key,
			Timestamp: time.Now(),
		})
	}
}

// fileNames returns the plain and compressed filenames for a key
func fileNames(key string) (string, string) {
	sanitized := utils.SanitizeKey(key)
	return sanitized + ".json", sanitized + ".json.gz"
}

// diskPaths returns the plain and compressed paths for a key
func (manager *Manager) diskPaths(key string) (string, string) {
	plainName, compressedName := fileNames(key)
	return manager.storage.PathFor(key, plainName), manager.storage.PathFor(key, compressedName)
}

// Get returns the cached payload for the key, or false on a miss.
// When inputHash is non-empty, an entry whose stored hash differs is
// invalidated and treated as a miss.
func (manager *Manager) Get(key string, inputHash string) ([]byte, bool) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Manager",
		"function": "Get",
	})

	if !manager.config.Enabled {
		return nil, false
	}

	now := time.Now()

	if entry := manager.memory.get(key); entry != nil {
		if entry.IsValid(now, inputHash) {
			manager.memory.touch(key, now)
			manager.countHit()
			return entry.Data, true
		}

		if entry.IsExpired(now) {
			manager.emit(EventExpired, key)
		} else {
			manager.emit(EventInvalidated, key)
		}

		manager.memory.remove(key)
		manager.deleteFromDisk(key)
		manager.countMiss()
		return nil, false
	}

	entry, err := manager.readFromDisk(key)
	if err != nil {
		logger.WithError(err).Debugf("disk read for key %q failed, treating as miss", key)
		manager.countMiss()
		return nil, false
	}

	if entry == nil {
		manager.countMiss()
		return nil, false
	}

	if !entry.IsValid(now, inputHash) {
		if entry.IsExpired(now) {
			manager.emit(EventExpired, key)
		} else {
			manager.emit(EventInvalidated, key)
		}

		manager.deleteFromDisk(key)
		manager.countMiss()
		return nil, false
	}

	entry.Touch(now)
	manager.memory.put(entry)
	manager.countHit()
	return entry.Data, true
}

// Set stores the payload under the key. Oversized payloads are skipped
// (logged, not cached) rather than failing the caller. The memory tier is
// updated before the disk write so readers see the new value immediately.
func (manager *Manager) Set(key string, data []byte, ttl time.Duration, inputHash string) error {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Manager",
		"function": "Set",
	})

	if !manager.config.Enabled {
		return nil
	}

	if int64(len(data)) > manager.config.MaxEntrySize {
		manager.countRejected()
		logger.Warn(commons.NewEntryTooLargeError(key, int64(len(data)), manager.config.MaxEntrySize))
		return nil
	}

	if ttl == 0 {
		ttl = manager.config.TTL
	}

	checksum, err := manager.validator.Calculate(data, nil)
	if err != nil {
		return xerrors.Errorf("failed to compute checksum for key %q: %w", key, err)
	}

	now := time.Now()
	entry := &Entry{
		Key:          key,
		Data:         data,
		Timestamp:    now.UnixMilli(),
		Hash:         inputHash,
		Size:         len(data),
		AccessCount:  0,
		LastAccessed: now.UnixMilli(),
		TTL:          ttl,
		Checksum:     checksum,
	}

	// persist from a private copy; once the entry is in the memory tier,
	// concurrent readers may update its access metadata
	persisted := *entry

	manager.memory.put(entry)
	manager.countSet()
	manager.emit(EventCreated, key)

	err = manager.writeToDisk(&persisted)
	if err != nil {
		// degrade to memory-only; persistent failures reduce performance,
		// not correctness
		logger.WithError(err).Debugf("disk write for key %q failed, entry is memory-only", key)
	}

	return nil
}

// Delete removes the entry from both tiers. Missing files are not errors.
func (manager *Manager) Delete(key string) error {
	if !manager.config.Enabled {
		return nil
	}

	manager.memory.remove(key)
	manager.countDelete()
	return manager.deleteFromDisk(key)
}

// Has checks whether a valid entry exists in either tier without reading
// the full payload from disk
func (manager *Manager) Has(key string) bool {
	if !manager.config.Enabled {
		return false
	}

	if entry := manager.memory.peek(key); entry != nil {
		return entry.IsValid(time.Now(), "")
	}

	plainPath, compressedPath := manager.diskPaths(key)

	exists := false
	err := manager.breaker.Execute(func() error {
		if _, statErr := os.Stat(plainPath); statErr == nil {
			exists = true
		} else if _, statErr := os.Stat(compressedPath); statErr == nil {
			exists = true
		}
		return nil
	})
	if err != nil {
		return false
	}

	return exists
}

// Clear removes all entries from both tiers
func (manager *Manager) Clear() error {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Manager",
		"function": "Clear",
	})

	manager.memory.clear()

	infos, err := manager.storage.GetAllPartitionInfo()
	if err != nil {
		return xerrors.Errorf("failed to enumerate partitions: %w", err)
	}

	for _, info := range infos {
		entries, readErr := os.ReadDir(info.PartitionDir)
		if readErr != nil {
			logger.WithError(readErr).Debugf("failed to read partition %d during clear", info.PartitionID)
			continue
		}

		for _, dirEntry := range entries {
			if !dirEntry.IsDir() {
				os.Remove(utils.JoinPath(info.PartitionDir, dirEntry.Name()))
			}
		}
	}

	manager.storage.Invalidate()
	return nil
}

// writeToDisk persists the entry atomically through the circuit breaker
func (manager *Manager) writeToDisk(entry *Entry) error {
	plainPath, compressedPath := manager.diskPaths(entry.Key)

	persisted := *entry
	targetPath := plainPath
	stalePath := compressedPath

	if manager.config.Compression.Enabled && entry.Size >= manager.config.Compression.MinSize {
		result, err := manager.compressor.Compress(entry.Data)
		if err != nil {
			return xerrors.Errorf("failed to compress entry %q: %w", entry.Key, err)
		}

		persisted.Data = result.Data
		persisted.Compressed = true
		targetPath = compressedPath
		stalePath = plainPath

		manager.countCompression(int64(result.OriginalSize), int64(result.CompressedSize))
	}

	envelope, err := json.Marshal(&persisted)
	if err != nil {
		return xerrors.Errorf("failed to serialize entry %q: %w", entry.Key, err)
	}

	err = manager.breaker.Execute(func() error {
		return manager.writer.WriteFile(targetPath, envelope)
	})
	if err != nil {
		return err
	}

	// drop a leftover file with the other extension
	manager.writer.DeleteFile(stalePath)

	manager.storage.Invalidate()
	return nil
}

// readFromDisk loads and verifies an entry. A disk entry is trusted only
// if checksum verification succeeds; otherwise it is removed and a nil
// entry is returned.
func (manager *Manager) readFromDisk(key string) (*Entry, error) {
	plainPath, compressedPath := manager.diskPaths(key)

	var envelope []byte
	err := manager.breaker.Execute(func() error {
		data, readErr := os.ReadFile(plainPath)
		if readErr == nil {
			envelope = data
			return nil
		}
		if !os.IsNotExist(readErr) {
			return readErr
		}

		data, readErr = os.ReadFile(compressedPath)
		if readErr == nil {
			envelope = data
			return nil
		}
		if !os.IsNotExist(readErr) {
			return readErr
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if envelope == nil {
		return nil, nil
	}

	var entry Entry
	err = json.Unmarshal(envelope, &entry)
	if err != nil {
		// truncated or garbled file
		manager.invalidateCorrupted(key, []string{fmt.Sprintf("malformed envelope: %v", err)})
		return nil, nil
	}

	if entry.Compressed {
		result, decompressErr := manager.compressor.Decompress(entry.Data)
		if decompressErr != nil {
			manager.invalidateCorrupted(key, []string{fmt.Sprintf("decompression failed: %v", decompressErr)})
			return nil, nil
		}

		entry.Data = result.Data
		entry.Compressed = false
	}

	validation, err := manager.validator.Validate(entry.Data, nil, entry.Checksum)
	if err != nil {
		return nil, err
	}

	if !validation.Valid {
		manager.invalidateCorrupted(key, validation.Errors)
		return nil, nil
	}

	return &entry, nil
}

// invalidateCorrupted removes a corrupted disk entry and emits an event.
// Corruption surfaces as a cache miss, never as an error to the caller.
func (manager *Manager) invalidateCorrupted(key string, reasons []string) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Manager",
		"function": "invalidateCorrupted",
	})

	logger.Warn(commons.NewChecksumMismatchError(key, reasons))
	manager.emit(EventInvalidated, key)
	manager.deleteFromDisk(key)
}

// deleteFromDisk removes both candidate files for the key, best-effort
func (manager *Manager) deleteFromDisk(key string) error {
	plainPath, compressedPath := manager.diskPaths(key)

	err := manager.breaker.Execute(func() error {
		if deleteErr := manager.writer.DeleteFile(plainPath); deleteErr != nil {
			return deleteErr
		}
		return manager.writer.DeleteFile(compressedPath)
	})

	manager.storage.Invalidate()
	return err
}

// ProcessBatch executes cache operations under the batch processor's
// concurrency bound
func (manager *Manager) ProcessBatch(ctx context.Context, operations []batch.Operation) []batch.Result {
	return manager.batcher.Process(ctx, operations, func(ctx context.Context, op batch.Operation) ([]byte, error) {
		switch op.Type {
		case batch.OperationGet:
			data, ok := manager.Get(op.Key, op.InputHash)
			if !ok {
				return nil, commons.NewEntryNotFoundError(op.Key)
			}
			return data, nil
		case batch.OperationSet:
			return nil, manager.Set(op.Key, op.Data, op.TTL, op.InputHash)
		case batch.OperationDelete:
			return nil, manager.Delete(op.Key)
		case batch.OperationHas:
			if !manager.Has(op.Key) {
				return nil, commons.NewEntryNotFoundError(op.Key)
			}
			return nil, nil
		default:
			return nil, xerrors.Errorf("unknown batch operation type %q", op.Type)
		}
	})
}

// GetStats returns a cache statistics snapshot
func (manager *Manager) GetStats() Stats {
	manager.statsMutex.Lock()

	stats := Stats{
		Hits:     manager.hits,
		Misses:   manager.misses,
		Sets:     manager.sets,
		Deletes:  manager.deletes,
		Rejected: manager.rejected,
	}

	if manager.bytesOriginal > 0 {
		stats.CompressionRatio = float64(manager.bytesOnDisk) / float64(manager.bytesOriginal)
	}

	manager.statsMutex.Unlock()

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	stats.MemoryEntries = manager.memory.len()
	stats.TotalSize = manager.memory.size()
	stats.Breaker = manager.breaker.GetStats()
	stats.BufferPool = manager.bufferPool.GetStats()
	stats.Batch = manager.batcher.GetStats()

	return stats
}

// ShrinkPools trims idle pooled buffers and gzip writers toward their
// configured minimums
func (manager *Manager) ShrinkPools() int {
	return manager.bufferPool.Shrink() + manager.compressor.Shrink()
}

// GetStorage returns the partitioned storage for balance diagnostics
func (manager *Manager) GetStorage() *storage.PartitionedStorage {
	return manager.storage
}

// Release releases resources
func (manager *Manager) Release() {
	manager.compressor.Release()
	manager.memory.clear()
}

func (manager *Manager) countHit() {
	manager.statsMutex.Lock()
	manager.hits++
	manager.statsMutex.Unlock()
}

func (manager *Manager) countMiss() {
	manager.statsMutex.Lock()
	manager.misses++
	manager.statsMutex.Unlock()
}

func (manager *Manager) countSet() {
	manager.statsMutex.Lock()
	manager.sets++
	manager.statsMutex.Unlock()
}

func (manager *Manager) countDelete() {
	manager.statsMutex.Lock()
	manager.deletes++
	manager.statsMutex.Unlock()
}

func (manager *Manager) countRejected() {
	manager.statsMutex.Lock()
	manager.rejected++
	manager.statsMutex.Unlock()
}

func (manager *Manager) countCompression(original int64, compressed int64) {
	manager.statsMutex.Lock()
	manager.bytesOriginal += original
	manager.bytesOnDisk += compressed
	manager.statsMutex.Unlock()
}
