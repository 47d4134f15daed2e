package commons

import "time"

const (
	CacheTTLDefault            time.Duration = 1 * time.Hour
	MaxEntrySizeDefault        int64         = 10 * 1024 * 1024 // 10MB
	MaxMemoryEntriesDefault    int           = 1000
	CacheRootPathPrefixDefault string        = "/tmp/devcache"
	LogFilePathPrefixDefault   string        = "/tmp/devcache"

	CompressionLevelDefault           int = 6
	CompressionMinSizeDefault         int = 1024      // 1KB
	CompressionWorkerThresholdDefault int = 64 * 1024 // 64KB
	CompressionMaxWorkersDefault      int = 4

	CircuitFailureThresholdDefault int           = 5
	CircuitSuccessThresholdDefault int           = 2
	CircuitTimeoutDefault          time.Duration = 30 * time.Second
	CircuitMonitoringWindowDefault time.Duration = 1 * time.Minute

	PartitionCountDefault int = 256

	BackgroundMaxWorkersDefault    int           = 4
	BackgroundBatchSizeDefault     int           = 50
	BackgroundFlushIntervalDefault time.Duration = 5 * time.Second

	MemoryWarningThresholdDefault   float64       = 0.75
	MemoryCriticalThresholdDefault  float64       = 0.90
	MemoryMonitoringIntervalDefault time.Duration = 30 * time.Second
	MaxMemoryDefault                int64         = 1024 * 1024 * 1024 // 1GB

	ChecksumAlgorithmDefault string = "sha256"

	ProfileServicePortDefault     int = 12021
	PrometheusExporterPortDefault int = 12022
)
