package commons

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	yaml "gopkg.in/yaml.v2"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// GetDefaultLogFilePath returns default log file path
func GetDefaultLogFilePath() string {
	return fmt.Sprintf("%s_%s.log", LogFilePathPrefixDefault, getInstanceID())
}

// GetDefaultCacheRootPath returns default cache root path
func GetDefaultCacheRootPath() string {
	return fmt.Sprintf("%s_%s", CacheRootPathPrefixDefault, getInstanceID())
}

// CompressionConfig holds compression parameters.
// envconfig prefixes nested struct fields with the parent field's name,
// so tags hold path-relative names (e.g. DEVCACHE_CACHE_COMPRESSION_LEVEL).
type CompressionConfig struct {
	Enabled         bool `yaml:"enabled" envconfig:"ENABLED"`
	Level           int  `yaml:"level" envconfig:"LEVEL"`
	MinSize         int  `yaml:"min_size" envconfig:"MIN_SIZE"`
	UseWorkers      bool `yaml:"use_workers" envconfig:"USE_WORKERS"`
	MaxWorkers      int  `yaml:"max_workers" envconfig:"MAX_WORKERS"`
	WorkerThreshold int  `yaml:"worker_threshold" envconfig:"WORKER_THRESHOLD"`
}

// CircuitBreakerConfig holds circuit breaker parameters
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	FailureThreshold int           `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" envconfig:"SUCCESS_THRESHOLD"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MonitoringWindow time.Duration `yaml:"monitoring_window" envconfig:"MONITORING_WINDOW"`
}

// PartitionedStorageConfig holds partitioned storage parameters
type PartitionedStorageConfig struct {
	Enabled    bool `yaml:"enabled" envconfig:"ENABLED"`
	Partitions int  `yaml:"partitions" envconfig:"PARTITIONS"`
}

// BackgroundWorkersConfig holds background worker parameters
type BackgroundWorkersConfig struct {
	MaxWorkers    int           `yaml:"max_workers" envconfig:"MAX_WORKERS"`
	BatchSize     int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" envconfig:"FLUSH_INTERVAL"`
}

// MemoryPressureConfig holds memory pressure detection parameters
type MemoryPressureConfig struct {
	WarningThreshold   float64       `yaml:"warning_threshold" envconfig:"WARNING_THRESHOLD"`
	CriticalThreshold  float64       `yaml:"critical_threshold" envconfig:"CRITICAL_THRESHOLD"`
	MonitoringInterval time.Duration `yaml:"monitoring_interval" envconfig:"MONITORING_INTERVAL"`
	AutoEviction       bool          `yaml:"auto_eviction" envconfig:"AUTO_EVICTION"`
	MaxMemory          int64         `yaml:"max_memory" envconfig:"MAX_MEMORY"`
}

// ChecksumConfig holds checksum validation parameters
type ChecksumConfig struct {
	Algorithm          string `yaml:"algorithm" envconfig:"ALGORITHM"`
	SecondaryAlgorithm string `yaml:"secondary_algorithm,omitempty" envconfig:"SECONDARY_ALGORITHM"`
	HMACKey            string `yaml:"hmac_key,omitempty" envconfig:"HMAC_KEY"`
}

// CacheConfig holds the cache engine parameters
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	TTL              time.Duration `yaml:"ttl" envconfig:"TTL"`
	MaxEntrySize     int64         `yaml:"max_entry_size" envconfig:"MAX_ENTRY_SIZE"`
	MaxMemoryEntries int           `yaml:"max_memory_entries" envconfig:"MAX_MEMORY_ENTRIES"`
	BaseDir          string        `yaml:"base_dir" envconfig:"BASE_DIR"`

	Compression        CompressionConfig        `yaml:"compression,omitempty" envconfig:"COMPRESSION"`
	CircuitBreaker     CircuitBreakerConfig     `yaml:"circuit_breaker,omitempty" envconfig:"CIRCUIT_BREAKER"`
	PartitionedStorage PartitionedStorageConfig `yaml:"partitioned_storage,omitempty" envconfig:"PARTITIONED_STORAGE"`
	BackgroundWorkers  BackgroundWorkersConfig  `yaml:"background_workers,omitempty" envconfig:"BACKGROUND_WORKERS"`
	MemoryPressure     MemoryPressureConfig     `yaml:"memory_pressure,omitempty" envconfig:"MEMORY_PRESSURE"`
	Checksum           ChecksumConfig           `yaml:"checksum,omitempty" envconfig:"CHECKSUM"`
}

// Config holds the parameters list which can be configured
type Config struct {
	Cache CacheConfig `yaml:"cache,omitempty" envconfig:"CACHE"`

	LogPath string `yaml:"log_path,omitempty" envconfig:"LOG_PATH"`

	Profile                bool `yaml:"profile,omitempty" envconfig:"PROFILE"`
	ProfileServicePort     int  `yaml:"profile_service_port,omitempty" envconfig:"PROFILE_SERVICE_PORT"`
	PrometheusExporterPort int  `yaml:"prometheus_exporter_port,omitempty" envconfig:"PROMETHEUS_EXPORTER_PORT"`

	Debug bool `yaml:"debug,omitempty" envconfig:"DEBUG"`

	InstanceID string `yaml:"instanceid,omitempty" envconfig:"INSTANCE_ID"`
}

// NewDefaultCacheConfig creates a default CacheConfig
func NewDefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:          true,
		TTL:              CacheTTLDefault,
		MaxEntrySize:     MaxEntrySizeDefault,
		MaxMemoryEntries: MaxMemoryEntriesDefault,
		BaseDir:          GetDefaultCacheRootPath(),

		Compression: CompressionConfig{
			Enabled:         true,
			Level:           CompressionLevelDefault,
			MinSize:         CompressionMinSizeDefault,
			UseWorkers:      false,
			MaxWorkers:      CompressionMaxWorkersDefault,
			WorkerThreshold: CompressionWorkerThresholdDefault,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: CircuitFailureThresholdDefault,
			SuccessThreshold: CircuitSuccessThresholdDefault,
			Timeout:          CircuitTimeoutDefault,
			MonitoringWindow: CircuitMonitoringWindowDefault,
		},
		PartitionedStorage: PartitionedStorageConfig{
			Enabled:    true,
			Partitions: PartitionCountDefault,
		},
		BackgroundWorkers: BackgroundWorkersConfig{
			MaxWorkers:    BackgroundMaxWorkersDefault,
			BatchSize:     BackgroundBatchSizeDefault,
			FlushInterval: BackgroundFlushIntervalDefault,
		},
		MemoryPressure: MemoryPressureConfig{
			WarningThreshold:   MemoryWarningThresholdDefault,
			CriticalThreshold:  MemoryCriticalThresholdDefault,
			MonitoringInterval: MemoryMonitoringIntervalDefault,
			AutoEviction:       true,
			MaxMemory:          MaxMemoryDefault,
		},
		Checksum: ChecksumConfig{
			Algorithm: ChecksumAlgorithmDefault,
		},
	}
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		Cache: NewDefaultCacheConfig(),

		LogPath: "",

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: PrometheusExporterPortDefault,

		Debug: false,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML - %v", err)
	}

	return config, nil
}

// NewConfigFromEnv creates Config from environment variables, overriding defaults
func NewConfigFromEnv() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process("devcache", config)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from environment - %v", err)
	}

	return config, nil
}

// MakeWorkDirs creates dirs required
func (config *Config) MakeWorkDirs() error {
	if len(config.Cache.BaseDir) > 0 {
		err := os.MkdirAll(config.Cache.BaseDir, 0755)
		if err != nil {
			return err
		}
	}

	return nil
}

// CleanWorkDirs deletes dirs created
func (config *Config) CleanWorkDirs() error {
	if len(config.Cache.BaseDir) > 0 {
		err := os.RemoveAll(config.Cache.BaseDir)
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	if config.Profile && config.ProfileServicePort <= 0 {
		return NewConfigValidationError("profile_service_port", "profile service port must be given")
	}

	return config.Cache.Validate()
}

// Validate validates cache configuration
func (config *CacheConfig) Validate() error {
	if config.MaxEntrySize <= 0 {
		return NewConfigValidationError("max_entry_size", "max entry size must be positive")
	}

	if config.MaxMemoryEntries <= 0 {
		return NewConfigValidationError("max_memory_entries", "max memory entries must be positive")
	}

	if len(config.BaseDir) == 0 {
		return NewConfigValidationError("base_dir", "cache base dir must be given")
	}

	if config.Compression.MaxWorkers < 0 {
		return NewConfigValidationError("compression.max_workers", "max workers must not be negative")
	}

	if config.CircuitBreaker.Enabled {
		if config.CircuitBreaker.FailureThreshold <= 0 {
			return NewConfigValidationError("circuit_breaker.failure_threshold", "failure threshold must be positive")
		}

		if config.CircuitBreaker.SuccessThreshold <= 0 {
			return NewConfigValidationError("circuit_breaker.success_threshold", "success threshold must be positive")
		}

		if config.CircuitBreaker.Timeout <= 0 {
			return NewConfigValidationError("circuit_breaker.timeout", "timeout must be positive")
		}

		if config.CircuitBreaker.MonitoringWindow <= 0 {
			return NewConfigValidationError("circuit_breaker.monitoring_window", "monitoring window must be positive")
		}
	}

	if config.PartitionedStorage.Enabled && config.PartitionedStorage.Partitions <= 0 {
		return NewConfigValidationError("partitioned_storage.partitions", "partition count must be positive")
	}

	if config.MemoryPressure.WarningThreshold <= 0 || config.MemoryPressure.WarningThreshold >= 1 {
		return NewConfigValidationError("memory_pressure.warning_threshold", "warning threshold must be between 0 and 1")
	}

	if config.MemoryPressure.CriticalThreshold <= 0 || config.MemoryPressure.CriticalThreshold > 1 {
		return NewConfigValidationError("memory_pressure.critical_threshold", "critical threshold must be between 0 and 1")
	}

	if config.MemoryPressure.WarningThreshold >= config.MemoryPressure.CriticalThreshold {
		return NewConfigValidationError("memory_pressure.warning_threshold", "warning threshold must be less than critical threshold")
	}

	if config.MemoryPressure.MaxMemory <= 0 {
		return NewConfigValidationError("memory_pressure.max_memory", "max memory must be positive")
	}

	if !IsValidChecksumAlgorithm(config.Checksum.Algorithm) {
		return NewConfigValidationError("checksum.algorithm", fmt.Sprintf("unknown checksum algorithm %q", config.Checksum.Algorithm))
	}

	if len(config.Checksum.SecondaryAlgorithm) > 0 && !IsValidChecksumAlgorithm(config.Checksum.SecondaryAlgorithm) {
		return NewConfigValidationError("checksum.secondary_algorithm", fmt.Sprintf("unknown checksum algorithm %q", config.Checksum.SecondaryAlgorithm))
	}

	return nil
}

// IsValidChecksumAlgorithm checks if the given algorithm name is supported
func IsValidChecksumAlgorithm(algorithm string) bool {
	switch algorithm {
	case "sha256", "sha512", "sha1", "md5":
		return true
	default:
		return false
	}
}
