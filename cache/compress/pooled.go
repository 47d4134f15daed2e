package compress

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/devcache/devcache/cache/pool"
)

// compressJob is a unit of work handed to an offload worker
type compressJob struct {
	data       []byte
	decompress bool
	resultCh   chan compressJobResult
}

type compressJobResult struct {
	compressed   CompressResult
	decompressed DecompressResult
	err          error
}

// PooledCompressorStats is a point-in-time snapshot of offload counters
type PooledCompressorStats struct {
	Offloaded uint64 `json:"offloaded"`
	Inline    uint64 `json:"inline"`
	Fallback  uint64 `json:"fallback"`
}

// PooledCompressor offloads work above a size threshold to a bounded pool
// of workers. Whenever the pool cannot take a job the call falls back to
// the inline path, so correctness never depends on worker availability.
type PooledCompressor struct {
	inline    *InlineCompressor
	threshold int
	jobCh     chan compressJob
	stopCh    chan struct{}
	waitGroup sync.WaitGroup

	offloaded uint64
	inlined   uint64
	fallback  uint64
	mutex     sync.Mutex

	stopped bool
}

// NewPooledCompressor creates a PooledCompressor with maxWorkers offload workers
func NewPooledCompressor(level int, maxWorkers int, threshold int, bufferPool *pool.BufferPool) *PooledCompressor {
	logger := log.WithFields(log.Fields{
		"package":  "compress",
		"struct":   "PooledCompressor",
		"function": "NewPooledCompressor",
	})

	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	if threshold <= 0 {
		threshold = 64 * 1024
	}

	compressor := &PooledCompressor{
		inline:    NewInlineCompressor(level, bufferPool),
		threshold: threshold,
		jobCh:     make(chan compressJob, maxWorkers),
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		compressor.waitGroup.Add(1)
		go compressor.worker()
	}

	logger.Debugf("started %d compression offload workers, threshold %d bytes", maxWorkers, threshold)
	return compressor
}

// worker runs offloaded jobs and reports results via the job channel
func (compressor *PooledCompressor) worker() {
	defer compressor.waitGroup.Done()

	for {
		select {
		case <-compressor.stopCh:
			return
		case job := <-compressor.jobCh:
			var result compressJobResult
			if job.decompress {
				result.decompressed, result.err = compressor.inline.Decompress(job.data)
			} else {
				result.compressed, result.err = compressor.inline.Compress(job.data)
			}
			job.resultCh <- result
		}
	}
}

// dispatch tries to hand a job to a worker, returning false when the pool
// is saturated or stopped
func (compressor *PooledCompressor) dispatch(job compressJob) bool {
	compressor.mutex.Lock()
	defer compressor.mutex.Unlock()

	if compressor.stopped {
		return false
	}

	select {
	case compressor.jobCh <- job:
		return true
	default:
		return false
	}
}

// Compress compresses data, offloading large payloads to the worker pool
func (compressor *PooledCompressor) Compress(data []byte) (CompressResult, error) {
	if len(data) < compressor.threshold {
		compressor.countInline()
		return compressor.inline.Compress(data)
	}

	job := compressJob{
		data:     data,
		resultCh: make(chan compressJobResult, 1),
	}

	if !compressor.dispatch(job) {
		compressor.countFallback()
		return compressor.inline.Compress(data)
	}

	compressor.countOffloaded()
	result := <-job.resultCh
	return result.compressed, result.err
}

// expectedDecompressedSize reads the gzip ISIZE trailer, the uncompressed
// length mod 2^32. Decompression cost scales with the output, not with the
// compressed input, so offload decisions use this value.
func expectedDecompressedSize(data []byte) int {
	if len(data) < 4 {
		return len(data)
	}
	return int(binary.LittleEndian.Uint32(data[len(data)-4:]))
}

// Decompress decompresses data, offloading work whose expected output is
// above the threshold to the worker pool
func (compressor *PooledCompressor) Decompress(data []byte) (DecompressResult, error) {
	if expectedDecompressedSize(data) < compressor.threshold {
		compressor.countInline()
		return compressor.inline.Decompress(data)
	}

	job := compressJob{
		data:       data,
		decompress: true,
		resultCh:   make(chan compressJobResult, 1),
	}

	if !compressor.dispatch(job) {
		compressor.countFallback()
		return compressor.inline.Decompress(data)
	}

	compressor.countOffloaded()
	result := <-job.resultCh
	return result.decompressed, result.err
}

// Shrink trims idle pooled resources of the inline path
func (compressor *PooledCompressor) Shrink() int {
	return compressor.inline.Shrink()
}

// Release stops the offload workers
func (compressor *PooledCompressor) Release() {
	compressor.mutex.Lock()
	if compressor.stopped {
		compressor.mutex.Unlock()
		return
	}
	compressor.stopped = true
	compressor.mutex.Unlock()

	close(compressor.stopCh)
	compressor.waitGroup.Wait()

	// serve jobs queued before the workers exited
	for {
		select {
		case job := <-compressor.jobCh:
			var result compressJobResult
			if job.decompress {
				result.decompressed, result.err = compressor.inline.Decompress(job.data)
			} else {
				result.compressed, result.err = compressor.inline.Compress(job.data)
			}
			job.resultCh <- result
		default:
			return
		}
	}
}

// GetStats returns offload statistics
func (compressor *PooledCompressor) GetStats() PooledCompressorStats {
	compressor.mutex.Lock()
	defer compressor.mutex.Unlock()

	return PooledCompressorStats{
		Offloaded: compressor.offloaded,
		Inline:    compressor.inlined,
		Fallback:  compressor.fallback,
	}
}

func (compressor *PooledCompressor) countOffloaded() {
	compressor.mutex.Lock()
	compressor.offloaded++
	compressor.mutex.Unlock()
}

func (compressor *PooledCompressor) countInline() {
	compressor.mutex.Lock()
	compressor.inlined++
	compressor.mutex.Unlock()
}

func (compressor *PooledCompressor) countFallback() {
	compressor.mutex.Lock()
	compressor.fallback++
	compressor.mutex.Unlock()
}
