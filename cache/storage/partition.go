package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/devcache/devcache/utils"
)

const (
	partitionInfoCacheKey     = "partition_info"
	partitionInfoCacheTimeout = 10 * time.Second
)

// PartitionInfo describes one on-disk shard directory.
// It is derived from the filesystem and recomputable at any time.
type PartitionInfo struct {
	PartitionID  int    `json:"partition_id"`
	PartitionDir string `json:"partition_dir"`
	FileCount    int    `json:"file_count"`
}

// PartitionedStorage maps cache keys to one of N shard directories via
// consistent hashing, avoiding directory-entry limits and contention on
// a single flat directory
type PartitionedStorage struct {
	baseDir    string
	partitions int

	// memoizes expensive partition directory scans
	infoCache *gocache.Cache
}

// NewPartitionedStorage creates shard directories under baseDir
func NewPartitionedStorage(baseDir string, partitions int) (*PartitionedStorage, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "PartitionedStorage",
		"function": "NewPartitionedStorage",
	})

	if partitions <= 0 {
		partitions = 256
	}

	storage := &PartitionedStorage{
		baseDir:    baseDir,
		partitions: partitions,
		infoCache:  gocache.New(partitionInfoCacheTimeout, time.Minute),
	}

	for i := 0; i < partitions; i++ {
		err := os.MkdirAll(storage.partitionDir(i), 0755)
		if err != nil {
			return nil, xerrors.Errorf("failed to create partition directory %d: %w", i, err)
		}
	}

	logger.Debugf("initialized %d partition directories under %s", partitions, baseDir)
	return storage, nil
}

// GetBaseDir returns the storage base directory
func (storage *PartitionedStorage) GetBaseDir() string {
	return storage.baseDir
}

// GetPartitions returns the partition count
func (storage *PartitionedStorage) GetPartitions() int {
	return storage.partitions
}

// partitionDir returns the shard directory path for a partition id
func (storage *PartitionedStorage) partitionDir(partitionID int) string {
	return utils.JoinPath(storage.baseDir, fmt.Sprintf("partition_%02x", partitionID))
}

// PartitionFor deterministically maps a key to a partition id.
// The mapping is stable across calls and process restarts for a fixed
// partition count.
func (storage *PartitionedStorage) PartitionFor(key string) int {
	hash := sha256.Sum256([]byte(key))
	return int(binary.BigEndian.Uint64(hash[:8]) % uint64(storage.partitions))
}

// PathFor returns the full path for a filename belonging to the key
func (storage *PartitionedStorage) PathFor(key string, filename string) string {
	return utils.JoinPath(storage.partitionDir(storage.PartitionFor(key)), filename)
}

// Invalidate drops the memoized partition scan after a write or delete
func (storage *PartitionedStorage) Invalidate() {
	storage.infoCache.Delete(partitionInfoCacheKey)
}

// GetAllPartitionInfo enumerates file counts per shard.
// Scans are memoized briefly since they touch every shard directory.
func (storage *PartitionedStorage) GetAllPartitionInfo() ([]PartitionInfo, error) {
	if cached, ok := storage.infoCache.Get(partitionInfoCacheKey); ok {
		if infos, ok := cached.([]PartitionInfo); ok {
			return infos, nil
		}
	}

	infos := make([]PartitionInfo, 0, storage.partitions)
	for i := 0; i < storage.partitions; i++ {
		dir := storage.partitionDir(i)

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, xerrors.Errorf("failed to read partition directory %q: %w", dir, err)
		}

		fileCount := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				fileCount++
			}
		}

		infos = append(infos, PartitionInfo{
			PartitionID:  i,
			PartitionDir: dir,
			FileCount:    fileCount,
		})
	}

	storage.infoCache.Set(partitionInfoCacheKey, infos, gocache.DefaultExpiration)
	return infos, nil
}

// GetBalanceScore returns 1 - coefficient of variation of per-partition
// file counts, clamped to [0, 1]. 1 means perfectly balanced.
func (storage *PartitionedStorage) GetBalanceScore() (float64, error) {
	infos, err := storage.GetAllPartitionInfo()
	if err != nil {
		return 0, err
	}

	if len(infos) == 0 {
		return 1, nil
	}

	total := 0
	for _, info := range infos {
		total += info.FileCount
	}

	mean := float64(total) / float64(len(infos))
	if mean == 0 {
		return 1, nil
	}

	variance := 0.0
	for _, info := range infos {
		diff := float64(info.FileCount) - mean
		variance += diff * diff
	}
	variance /= float64(len(infos))

	score := 1.0 - math.Sqrt(variance)/mean
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, nil
}
