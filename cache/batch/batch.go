package batch

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// OperationType is a batched cache operation type
type OperationType string

const (
	OperationGet    OperationType = "get"
	OperationSet    OperationType = "set"
	OperationDelete OperationType = "delete"
	OperationHas    OperationType = "has"
)

// Operation is one item of a batch
type Operation struct {
	Type      OperationType `json:"type"`
	Key       string        `json:"key"`
	Data      []byte        `json:"data,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty"`
	InputHash string        `json:"input_hash,omitempty"`
}

// Result is the outcome of one batched operation
type Result struct {
	Key      string        `json:"key"`
	Success  bool          `json:"success"`
	Data     []byte        `json:"data,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Executor runs a single operation against the cache
type Executor func(ctx context.Context, op Operation) ([]byte, error)

// Stats accumulates across Process calls for observability
type Stats struct {
	Processed  uint64        `json:"processed"`
	Succeeded  uint64        `json:"succeeded"`
	Failed     uint64        `json:"failed"`
	Retries    uint64        `json:"retries"`
	AvgLatency time.Duration `json:"avg_latency"`
	Throughput float64       `json:"throughput"` // operations per second
}

// Processor executes collections of cache operations under bounded
// concurrency with retry/backoff and a per-item timeout
type Processor struct {
	maxBatchSize   int
	maxConcurrency int
	opTimeout      time.Duration
	maxRetries     int
	retryDelay     time.Duration

	processed     uint64
	succeeded     uint64
	failed        uint64
	retries       uint64
	totalLatency  time.Duration
	totalDuration time.Duration

	mutex sync.Mutex
}

// NewProcessor creates a new batch Processor
func NewProcessor(maxBatchSize int, maxConcurrency int, opTimeout time.Duration, maxRetries int, retryDelay time.Duration) *Processor {
	if maxBatchSize <= 0 {
		maxBatchSize = 50
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}

	return &Processor{
		maxBatchSize:   maxBatchSize,
		maxConcurrency: maxConcurrency,
		opTimeout:      opTimeout,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
	}
}

// Process runs the operations in chunks of maxBatchSize, with at most
// maxConcurrency in flight at any instant. Per-item failures are isolated
// in the corresponding Result and do not fail sibling items.
func (processor *Processor) Process(ctx context.Context, operations []Operation, executor Executor) []Result {
	logger := log.WithFields(log.Fields{
		"package":  "batch",
		"struct":   "Processor",
		"function": "Process",
	})

	startTime := time.Now()
	results := make([]Result, len(operations))

	for chunkStart := 0; chunkStart < len(operations); chunkStart += processor.maxBatchSize {
		chunkEnd := chunkStart + processor.maxBatchSize
		if chunkEnd > len(operations) {
			chunkEnd = len(operations)
		}

		processor.processChunk(ctx, operations[chunkStart:chunkEnd], results[chunkStart:chunkEnd], executor)
	}

	elapsed := time.Since(startTime)

	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}

	logger.Debugf("processed %d operations in %v, %d succeeded", len(operations), elapsed, succeeded)

	processor.mutex.Lock()
	processor.totalDuration += elapsed
	processor.mutex.Unlock()

	return results
}

// processChunk runs one chunk under the concurrency semaphore
func (processor *Processor) processChunk(ctx context.Context, operations []Operation, results []Result, executor Executor) {
	sem := semaphore.NewWeighted(int64(processor.maxConcurrency))
	var waitGroup sync.WaitGroup

	for i := range operations {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{
				Key:     operations[i].Key,
				Success: false,
				Err:     xerrors.Errorf("failed to acquire batch slot: %w", err),
			}
			continue
		}

		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			defer sem.Release(1)

			results[index] = processor.runOperation(ctx, operations[index], executor)
		}(i)
	}

	waitGroup.Wait()
}

// runOperation executes one operation with timeout and retry/backoff
func (processor *Processor) runOperation(ctx context.Context, op Operation, executor Executor) Result {
	startTime := time.Now()

	var data []byte
	var lastErr error

	for attempt := 0; attempt <= processor.maxRetries; attempt++ {
		if attempt > 0 {
			// exponential backoff
			delay := processor.retryDelay * time.Duration(1<<(attempt-1))

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
			}

			if ctx.Err() != nil {
				break
			}

			processor.mutex.Lock()
			processor.retries++
			processor.mutex.Unlock()
		}

		opCtx, cancel := context.WithTimeout(ctx, processor.opTimeout)
		data, lastErr = executor(opCtx, op)
		cancel()

		if lastErr == nil {
			break
		}
	}

	duration := time.Since(startTime)

	processor.mutex.Lock()
	processor.processed++
	processor.totalLatency += duration
	if lastErr == nil {
		processor.succeeded++
	} else {
		processor.failed++
	}
	processor.mutex.Unlock()

	return Result{
		Key:      op.Key,
		Success:  lastErr == nil,
		Data:     data,
		Err:      lastErr,
		Duration: duration,
	}
}

// GetStats returns cumulative processor statistics
func (processor *Processor) GetStats() Stats {
	processor.mutex.Lock()
	defer processor.mutex.Unlock()

	stats := Stats{
		Processed: processor.processed,
		Succeeded: processor.succeeded,
		Failed:    processor.failed,
		Retries:   processor.retries,
	}

	if processor.processed > 0 {
		stats.AvgLatency = processor.totalLatency / time.Duration(processor.processed)
	}

	if processor.totalDuration > 0 {
		stats.Throughput = float64(processor.processed) / processor.totalDuration.Seconds()
	}

	return stats
}
