package commons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, CacheTTLDefault, config.Cache.TTL)
	assert.Equal(t, PartitionCountDefault, config.Cache.PartitionedStorage.Partitions)
	assert.Equal(t, "sha256", config.Cache.Checksum.Algorithm)
	assert.NotEmpty(t, config.InstanceID)

	err := config.Validate()
	assert.NoError(t, err)
}

func TestNewConfigFromYAML(t *testing.T) {
	yamlBytes := []byte(`
cache:
  enabled: true
  ttl: 1h
  max_entry_size: 1048576
  max_memory_entries: 500
  base_dir: /tmp/devcache_test
  compression:
    enabled: false
  partitioned_storage:
    enabled: true
    partitions: 64
log_path: /tmp/devcache_test.log
debug: true
`)

	config, err := NewConfigFromYAML(yamlBytes)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, config.Cache.TTL)
	assert.Equal(t, int64(1048576), config.Cache.MaxEntrySize)
	assert.Equal(t, 500, config.Cache.MaxMemoryEntries)
	assert.Equal(t, "/tmp/devcache_test", config.Cache.BaseDir)
	assert.False(t, config.Cache.Compression.Enabled)
	assert.Equal(t, 64, config.Cache.PartitionedStorage.Partitions)
	assert.Equal(t, "/tmp/devcache_test.log", config.LogPath)
	assert.True(t, config.Debug)

	// untouched fields keep their defaults
	assert.Equal(t, CircuitFailureThresholdDefault, config.Cache.CircuitBreaker.FailureThreshold)

	err = config.Validate()
	assert.NoError(t, err)
}

func TestNewConfigFromYAMLInvalid(t *testing.T) {
	_, err := NewConfigFromYAML([]byte("cache: ["))
	assert.Error(t, err)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("DEVCACHE_CACHE_TTL", "30m")
	t.Setenv("DEVCACHE_CACHE_MAX_MEMORY_ENTRIES", "250")
	t.Setenv("DEVCACHE_CACHE_COMPRESSION_LEVEL", "9")
	t.Setenv("DEVCACHE_CACHE_CIRCUIT_BREAKER_TIMEOUT", "45s")
	t.Setenv("DEVCACHE_CACHE_MEMORY_PRESSURE_WARNING_THRESHOLD", "0.6")
	t.Setenv("DEVCACHE_DEBUG", "true")

	config, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, config.Cache.TTL)
	assert.Equal(t, 250, config.Cache.MaxMemoryEntries)
	assert.Equal(t, 9, config.Cache.Compression.Level)
	assert.Equal(t, 45*time.Second, config.Cache.CircuitBreaker.Timeout)
	assert.Equal(t, 0.6, config.Cache.MemoryPressure.WarningThreshold)
	assert.True(t, config.Debug)

	// untouched fields keep their defaults
	assert.Equal(t, MaxEntrySizeDefault, config.Cache.MaxEntrySize)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(config *CacheConfig)
	}{
		{
			name: "non-positive max entry size",
			mutate: func(config *CacheConfig) {
				config.MaxEntrySize = 0
			},
		},
		{
			name: "non-positive max memory entries",
			mutate: func(config *CacheConfig) {
				config.MaxMemoryEntries = -1
			},
		},
		{
			name: "empty base dir",
			mutate: func(config *CacheConfig) {
				config.BaseDir = ""
			},
		},
		{
			name: "negative compression workers",
			mutate: func(config *CacheConfig) {
				config.Compression.MaxWorkers = -1
			},
		},
		{
			name: "zero breaker failure threshold",
			mutate: func(config *CacheConfig) {
				config.CircuitBreaker.FailureThreshold = 0
			},
		},
		{
			name: "zero breaker monitoring window",
			mutate: func(config *CacheConfig) {
				config.CircuitBreaker.MonitoringWindow = 0
			},
		},
		{
			name: "zero partitions while enabled",
			mutate: func(config *CacheConfig) {
				config.PartitionedStorage.Partitions = 0
			},
		},
		{
			name: "warning threshold out of range",
			mutate: func(config *CacheConfig) {
				config.MemoryPressure.WarningThreshold = 1.5
			},
		},
		{
			name: "warning threshold not below critical",
			mutate: func(config *CacheConfig) {
				config.MemoryPressure.WarningThreshold = 0.95
				config.MemoryPressure.CriticalThreshold = 0.90
			},
		},
		{
			name: "non-positive max memory",
			mutate: func(config *CacheConfig) {
				config.MemoryPressure.MaxMemory = 0
			},
		},
		{
			name: "unknown checksum algorithm",
			mutate: func(config *CacheConfig) {
				config.Checksum.Algorithm = "crc32"
			},
		},
		{
			name: "unknown secondary checksum algorithm",
			mutate: func(config *CacheConfig) {
				config.Checksum.SecondaryAlgorithm = "adler32"
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := NewDefaultCacheConfig()
			test.mutate(&config)

			err := config.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigValidationError(err))
		})
	}
}

func TestValidateDisabledBreakerSkipsBreakerChecks(t *testing.T) {
	config := NewDefaultCacheConfig()
	config.CircuitBreaker.Enabled = false
	config.CircuitBreaker.FailureThreshold = 0

	err := config.Validate()
	assert.NoError(t, err)
}

func TestProfileRequiresPort(t *testing.T) {
	config := NewDefaultConfig()
	config.Profile = true
	config.ProfileServicePort = 0

	err := config.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigValidationError(err))
}

func TestIsValidChecksumAlgorithm(t *testing.T) {
	assert.True(t, IsValidChecksumAlgorithm("sha256"))
	assert.True(t, IsValidChecksumAlgorithm("sha512"))
	assert.True(t, IsValidChecksumAlgorithm("sha1"))
	assert.True(t, IsValidChecksumAlgorithm("md5"))
	assert.False(t, IsValidChecksumAlgorithm("crc32"))
	assert.False(t, IsValidChecksumAlgorithm(""))
}

func TestMakeAndCleanWorkDirs(t *testing.T) {
	config := NewDefaultConfig()
	config.Cache.BaseDir = t.TempDir() + "/cache_root"

	err := config.MakeWorkDirs()
	require.NoError(t, err)
	assert.DirExists(t, config.Cache.BaseDir)

	err = config.CleanWorkDirs()
	require.NoError(t, err)
	assert.NoDirExists(t, config.Cache.BaseDir)
}
