package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPartitionedStorageCreatesDirectories(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, storage.GetPartitions())

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Len(t, entries, 16)

	for _, entry := range entries {
		assert.True(t, entry.IsDir())
		assert.True(t, strings.HasPrefix(entry.Name(), "partition_"))
	}
}

func TestPartitionForDeterminism(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 256)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("config-validation-%d", i)

		partition := storage.PartitionFor(key)
		assert.GreaterOrEqual(t, partition, 0)
		assert.Less(t, partition, 256)

		// stable across calls
		assert.Equal(t, partition, storage.PartitionFor(key))
	}

	// stable across instances, simulating a process restart
	otherStorage, err := NewPartitionedStorage(t.TempDir(), 256)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("config-validation-%d", i)
		assert.Equal(t, storage.PartitionFor(key), otherStorage.PartitionFor(key))
	}
}

func TestPathFor(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 8)
	require.NoError(t, err)

	path := storage.PathFor("some-key", "some-key.json")
	expectedDir := filepath.Join(tempDir, fmt.Sprintf("partition_%02x", storage.PartitionFor("some-key")))
	assert.Equal(t, filepath.Join(expectedDir, "some-key.json"), path)
}

func TestGetAllPartitionInfo(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 4)
	require.NoError(t, err)

	infos, err := storage.GetAllPartitionInfo()
	require.NoError(t, err)
	require.Len(t, infos, 4)

	for i, info := range infos {
		assert.Equal(t, i, info.PartitionID)
		assert.Zero(t, info.FileCount)
	}

	// place a file and re-scan after invalidation
	path := storage.PathFor("key-a", "key-a.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	storage.Invalidate()

	infos, err = storage.GetAllPartitionInfo()
	require.NoError(t, err)

	total := 0
	for _, info := range infos {
		total += info.FileCount
	}
	assert.Equal(t, 1, total)
}

func TestGetAllPartitionInfoMemoized(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 4)
	require.NoError(t, err)

	_, err = storage.GetAllPartitionInfo()
	require.NoError(t, err)

	// a write without invalidation is not visible until the memoized
	// scan expires
	path := storage.PathFor("key-b", "key-b.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	infos, err := storage.GetAllPartitionInfo()
	require.NoError(t, err)

	total := 0
	for _, info := range infos {
		total += info.FileCount
	}
	assert.Zero(t, total)
}

func TestGetBalanceScore(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewPartitionedStorage(tempDir, 4)
	require.NoError(t, err)

	// empty storage counts as perfectly balanced
	score, err := storage.GetBalanceScore()
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	// one file per partition is perfectly balanced
	for i := 0; i < 4; i++ {
		dir := filepath.Join(tempDir, fmt.Sprintf("partition_%02x", i))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f.json"), []byte("{}"), 0644))
	}
	storage.Invalidate()

	score, err = storage.GetBalanceScore()
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	// pile extra files into one partition and the score must drop
	dir := filepath.Join(tempDir, "partition_00")
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("g%d.json", i)), []byte("{}"), 0644))
	}
	storage.Invalidate()

	score, err = storage.GetBalanceScore()
	require.NoError(t, err)
	assert.Less(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}
